package diff

import (
	"strconv"
	"strings"

	"github.com/codewatchers/reviewd/internal/domain"
)

// Parse parses a multi-file unified diff string into a domain.Diff.
// It handles standard git diff output including file headers, rename and
// mode lines, and bare unified diffs that start directly at "--- ".
func Parse(patch string) (domain.Diff, error) {
	result := domain.Diff{}
	if strings.TrimSpace(patch) == "" {
		return result, nil
	}

	var (
		current     *domain.FileDiff
		currentHunk *domain.Hunk
		oldLine     int
		newLine     int
	)

	flushHunk := func() {
		if current != nil && currentHunk != nil {
			current.Hunks = append(current.Hunks, *currentHunk)
		}
		currentHunk = nil
	}
	flushFile := func() {
		flushHunk()
		if current != nil {
			result.Files = append(result.Files, *current)
		}
		current = nil
	}

	for _, line := range strings.Split(patch, "\n") {
		switch {
		case strings.HasPrefix(line, "diff --git "):
			flushFile()
			current = &domain.FileDiff{Status: domain.FileStatusModified}
			if old, newPath, ok := parseGitHeader(line); ok {
				current.OldPath = old
				current.Path = newPath
			}

		case strings.HasPrefix(line, "new file mode"):
			if current != nil {
				current.Status = domain.FileStatusAdded
			}

		case strings.HasPrefix(line, "deleted file mode"):
			if current != nil {
				current.Status = domain.FileStatusDeleted
			}

		case strings.HasPrefix(line, "rename from "):
			if current != nil {
				current.Status = domain.FileStatusRenamed
				current.OldPath = strings.TrimPrefix(line, "rename from ")
			}

		case strings.HasPrefix(line, "rename to "):
			if current != nil {
				current.Path = strings.TrimPrefix(line, "rename to ")
			}

		case strings.HasPrefix(line, "--- "):
			flushHunk()
			if current == nil {
				current = &domain.FileDiff{Status: domain.FileStatusModified}
			}
			path := stripPathPrefix(strings.TrimPrefix(line, "--- "))
			if path == "" {
				current.Status = domain.FileStatusAdded
			} else if current.OldPath == "" {
				current.OldPath = path
			}

		case strings.HasPrefix(line, "+++ "):
			if current == nil {
				continue
			}
			path := stripPathPrefix(strings.TrimPrefix(line, "+++ "))
			if path == "" {
				current.Status = domain.FileStatusDeleted
				current.Path = current.OldPath
			} else if current.Path == "" || current.Status != domain.FileStatusRenamed {
				current.Path = path
			}

		case strings.HasPrefix(line, "@@"):
			if current == nil {
				return domain.Diff{}, domain.NewParseError("hunk header before any file header", nil)
			}
			flushHunk()
			hunk, err := parseHunkHeader(line)
			if err != nil {
				return domain.Diff{}, err
			}
			currentHunk = &hunk
			oldLine = hunk.OldStart
			newLine = hunk.NewStart

		case strings.HasPrefix(line, "\\ "):
			// "\ No newline at end of file"

		case strings.HasPrefix(line, "index "), strings.HasPrefix(line, "similarity index"),
			strings.HasPrefix(line, "old mode"), strings.HasPrefix(line, "new mode"),
			strings.HasPrefix(line, "Binary files "):
			// metadata lines carry no hunk content

		default:
			if currentHunk == nil {
				continue
			}
			if line == "" {
				// trailing blank from the final newline split
				continue
			}
			hl := domain.HunkLine{}
			switch line[0] {
			case '+':
				hl.Kind = domain.LineAdded
				hl.Content = line[1:]
				hl.NewLine = newLine
				newLine++
			case '-':
				hl.Kind = domain.LineRemoved
				hl.Content = line[1:]
				hl.OldLine = oldLine
				oldLine++
			case ' ':
				hl.Kind = domain.LineContext
				hl.Content = line[1:]
				hl.OldLine = oldLine
				hl.NewLine = newLine
				oldLine++
				newLine++
			default:
				hl.Kind = domain.LineContext
				hl.Content = line
				hl.OldLine = oldLine
				hl.NewLine = newLine
				oldLine++
				newLine++
			}
			currentHunk.Lines = append(currentHunk.Lines, hl)
		}
	}
	flushFile()

	return result, nil
}

// ChangedRanges returns the new-file line ranges touched by a file's hunks,
// one range per hunk, in hunk order. Delete-only hunks contribute nothing:
// they have no new-side lines to address.
func ChangedRanges(file domain.FileDiff) []domain.LineRange {
	var ranges []domain.LineRange
	for _, hunk := range file.Hunks {
		if hunk.NewLines == 0 {
			continue
		}
		ranges = append(ranges, domain.LineRange{
			Start: hunk.NewStart,
			End:   hunk.NewStart + hunk.NewLines - 1,
		})
	}
	return ranges
}

// AddedLines counts the added lines across a file's hunks.
func AddedLines(file domain.FileDiff) int {
	count := 0
	for _, hunk := range file.Hunks {
		for _, line := range hunk.Lines {
			if line.Kind == domain.LineAdded {
				count++
			}
		}
	}
	return count
}

func parseGitHeader(line string) (oldPath, newPath string, ok bool) {
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return "", "", false
	}
	return stripPathPrefix(fields[2]), stripPathPrefix(fields[3]), true
}

// stripPathPrefix removes the a/ or b/ prefix git puts on paths and maps
// /dev/null to the empty string.
func stripPathPrefix(s string) string {
	if idx := strings.IndexByte(s, '\t'); idx >= 0 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)
	if s == "/dev/null" {
		return ""
	}
	if strings.HasPrefix(s, "a/") || strings.HasPrefix(s, "b/") {
		return s[2:]
	}
	return s
}

// parseHunkHeader parses a hunk header line like "@@ -10,7 +10,8 @@ context".
func parseHunkHeader(line string) (domain.Hunk, error) {
	hunk := domain.Hunk{}

	parts := strings.Split(line, "@@")
	if len(parts) < 3 {
		return hunk, domain.NewParseError("malformed hunk header: "+line, nil)
	}

	var sawOld, sawNew bool
	for _, part := range strings.Fields(strings.TrimSpace(parts[1])) {
		switch {
		case strings.HasPrefix(part, "-"):
			start, count, err := parseRange(strings.TrimPrefix(part, "-"))
			if err != nil {
				return hunk, domain.NewParseError("malformed hunk header: "+line, err)
			}
			hunk.OldStart = start
			hunk.OldLines = count
			sawOld = true
		case strings.HasPrefix(part, "+"):
			start, count, err := parseRange(strings.TrimPrefix(part, "+"))
			if err != nil {
				return hunk, domain.NewParseError("malformed hunk header: "+line, err)
			}
			hunk.NewStart = start
			hunk.NewLines = count
			sawNew = true
		}
	}
	if !sawOld || !sawNew {
		return hunk, domain.NewParseError("malformed hunk header: "+line, nil)
	}

	return hunk, nil
}

// parseRange parses "start,count" or "start" format.
func parseRange(s string) (start, count int, err error) {
	if idx := strings.Index(s, ","); idx >= 0 {
		start, err = strconv.Atoi(s[:idx])
		if err != nil {
			return 0, 0, err
		}
		count, err = strconv.Atoi(s[idx+1:])
		if err != nil {
			return 0, 0, err
		}
		return start, count, nil
	}
	start, err = strconv.Atoi(s)
	if err != nil {
		return 0, 0, err
	}
	return start, 1, nil
}
