// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package bam reads and writes BAM records as raw blocks, the
// serialized form of a record, so that records can be filtered and
// copied without being decoded.  It builds on the BAM and SAM packages
// in github.com/grailbio/hts.
//
// A BlockReader yields blocks; a Collator or RecordSource groups them
// into downsampling units; a BlockWriter writes the kept blocks back
// out, telling BlockObservers such as GIndexBuilder where each one
// landed.
package bam
