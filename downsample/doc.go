// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

/*Package downsample decides, unit by unit, which records of an alignment
  stream survive into a smaller output stream.

  A unit is a single read, an orphaned mate, or a mate pair.  Every unit
  gets one uint32 draw, and the unit is kept iff draw <= threshold, where
  the threshold is derived from the keep-probability p (see Threshold).

  Two selection modes exist:

    random: the draw comes from a seeded *rand.Rand owned by the Engine.
      Mates of a pair share one draw, so the pair is kept or dropped as
      a whole.  The kept subset depends on the order of the input.

    hash: the draw is a seeded MurmurHash3 (by default) of the unit's
      name, folded down to 32 bits.  Records with the same name always
      get the same decision, regardless of order or collation, so two
      files can be downsampled consistently.

  A Driver pulls units from a Source, asks the Engine for a decision,
  writes kept blocks to a Sink, and feeds a Progress reporter.  Side
  channels (checksums, indexes) are Finalizers run after the Sink is
  closed.
*/
package downsample
