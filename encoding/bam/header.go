package bam

import (
	"fmt"

	"github.com/grailbio/hts/sam"
)

// AddProgramLine appends an @PG line for the program id to h.  If h
// already has a program with that ID, a numeric suffix makes it unique.
// The new line's PP field names the last program already in h.
func AddProgramLine(h *sam.Header, id, cmdline, version string) error {
	progs := h.Progs()
	taken := make(map[string]bool, len(progs))
	for _, p := range progs {
		taken[p.UID()] = true
	}
	uid := id
	for i := 1; taken[uid]; i++ {
		uid = fmt.Sprintf("%s.%d", id, i)
	}
	var prev string
	if len(progs) > 0 {
		prev = progs[len(progs)-1].UID()
	}
	return h.AddProgram(sam.NewProgram(uid, id, cmdline, prev, version))
}

// MarkUnsorted records in h that the records are in no particular
// order, as they are after collation by name.
func MarkUnsorted(h *sam.Header) {
	h.SortOrder = sam.UnknownOrder
}
