// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*
Package bamdownsample keeps a random fraction of the reads in a BAM or
SAM file.

By default, records are collated by read name so that both mates of a
pair are kept or dropped together, and each pair, unpaired read and
orphaned mate is kept with probability P using a seeded random
generator.  Secondary and supplementary alignments are dropped.  The
output carries an @PG line and, since collation reorders records, an
unknown sort order.

In hash mode, each record is kept if a seeded hash of its read name
falls under the threshold for P.  Mates share a name, so they share a
decision without collation, and the output keeps the input order.
Requesting a .gbai index forces hash mode, since the index needs
position-sorted output.

The run can also write the MD5 of the output file, a .gbai index and a
TSV of run statistics.
*/
package bamdownsample
