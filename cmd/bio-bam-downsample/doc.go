/*Command bio-bam-downsample keeps a random fraction of the reads in a
  BAM or SAM file and writes them as BAM.

  By default, mates are collated by name so that a pair is kept or
  dropped as a whole, and secondary and supplementary alignments are
  dropped.  With --hash, reads are selected by a seeded hash of their
  name instead; the output then keeps the input order, and downsampling
  two files with the same --hash-seed selects the same read names in
  both.

  Usage: bio-bam-downsample --input=in.bam --output=out.bam --p=0.1 --seed=42 [--md5] [--index]

  --md5 writes the output's MD5 to --md5-file (default: output + ".md5").
  --index writes a .gbai index to --index-file (default: output +
  ".gbai") and implies --hash.
*/
package main
