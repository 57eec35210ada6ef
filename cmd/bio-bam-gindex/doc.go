/*Command bio-bam-gindex reads a position-sorted .bam file and writes a
  .gbai index for it.  It reads stdin and writes stdout unless --input
  and --output are given.  --shard-size is the approximate number of
  compressed bytes between index entries.

  bio-bam-downsample --index builds the same index while it writes.

  Usage: cat foo.bam | bio-bam-gindex --shard-size=65536 > foo.bam.gbai
*/
package main
