package search

import (
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/standardbeagle/logsearch-mcp/internal/types"
)

// Fingerprint hashes the semantically significant fields of a query —
// logic, time window, record_start_regex, include/exclude globs,
// page_size and the normalized scan root — into a stable token a
// cursor carries forward. Config-derived defaults must already be
// baked into query before calling this, so that a config reload never
// silently invalidates outstanding cursors.
func Fingerprint(q types.Query, normalizedRoot string) string {
	var b strings.Builder

	writeAtoms(&b, "must", q.Logic.Must)
	writeAtoms(&b, "any", q.Logic.Any)
	writeAtoms(&b, "none", q.Logic.None)

	b.WriteString("|ts:")
	if q.Time.TStart != nil {
		b.WriteString(strconv.FormatInt(q.Time.TStart.Unix(), 10))
	}
	b.WriteString(",")
	if q.Time.TEnd != nil {
		b.WriteString(strconv.FormatInt(q.Time.TEnd.Unix(), 10))
	}
	b.WriteString(",")
	b.WriteString(q.Time.TSRegex)

	b.WriteString("|rsr:")
	b.WriteString(q.RecordStartRegex)

	b.WriteString("|inc:")
	writeSortedGlobs(&b, q.Scan.IncludeGlobs)
	b.WriteString("|exc:")
	writeSortedGlobs(&b, q.Scan.ExcludeGlobs)

	b.WriteString("|ps:")
	b.WriteString(strconv.Itoa(q.PageSize))

	b.WriteString("|root:")
	b.WriteString(normalizedRoot)

	sum := xxhash.Sum64String(b.String())
	return strconv.FormatUint(sum, 16)
}

func writeAtoms(b *strings.Builder, label string, atoms []types.Atom) {
	b.WriteString("|")
	b.WriteString(label)
	b.WriteString(":")
	for i, a := range atoms {
		if i > 0 {
			b.WriteString(",")
		}
		b.WriteString(a.Text)
		b.WriteString(":")
		b.WriteString(strconv.FormatBool(a.Regex))
		b.WriteString(":")
		b.WriteString(strconv.FormatBool(a.CaseSensitive))
		b.WriteString(":")
		b.WriteString(strconv.FormatBool(a.WholeWord))
	}
}

func writeSortedGlobs(b *strings.Builder, globs []string) {
	sorted := append([]string(nil), globs...)
	sort.Strings(sorted)
	b.WriteString(strings.Join(sorted, ","))
}
