package lessons

import "testing"

const sampleDoc = `# Lessons Learned

## Active Lessons

<!-- Format:
### L001: [Title]
- **Priority**: critical | high | normal | low
- **Rule**: What to do
-->

### L001: Never commit secrets
- **Priority**: critical
- **Rule**: Read secrets from the environment only

### L002: Prefer small PRs
- **Priority**: normal
- **Rule**: Keep diffs under 400 lines

### L003: Check the migration order
- **Priority**: high
#### Context
Broke staging twice.
### Details
- **Rule**: Run migrations before deploying the API

## Archived
| ID | Title | Graduated To | Date |
|----|-------|--------------|------|
### L000: Old rule
- **Priority**: critical
- **Rule**: archived rule
`

func TestCriticalLessons_InclusionAndOrder(t *testing.T) {
	got := CriticalLessons(sampleDoc)
	if len(got) != 2 {
		t.Fatalf("expected 2 lessons, got %d: %+v", len(got), got)
	}
	if got[0].ID != "L001" || got[0].Priority != "critical" || got[0].Rule != "Read secrets from the environment only" {
		t.Fatalf("unexpected first lesson: %+v", got[0])
	}
	if got[1].ID != "L003" || got[1].Priority != "high" {
		t.Fatalf("unexpected second lesson: %+v", got[1])
	}
	if got[1].Rule != "Run migrations before deploying the API" {
		t.Fatalf("nested headers must stay in the body, rule=%q", got[1].Rule)
	}
}

func TestCriticalLessons_CriticalVsNormal(t *testing.T) {
	doc := "### L001: A\n- **Priority**: critical\n- **Rule**: do a\n\n### L002: B\n- **Priority**: normal\n- **Rule**: do b\n"
	got := CriticalLessons(doc)
	if len(got) != 1 || got[0].ID != "L001" {
		t.Fatalf("expected only the critical lesson, got %+v", got)
	}
}

func TestCriticalLessons_LastBlockRunsToEnd(t *testing.T) {
	doc := "### L007: Tail\n- **Priority**: high\n- **Rule**: last one wins"
	got := CriticalLessons(doc)
	if len(got) != 1 || got[0].Rule != "last one wins" {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestCriticalLessons_CaseSensitiveMarker(t *testing.T) {
	doc := "### L001: Shouting\n- **Priority**: Critical\n- **Rule**: nope\n"
	if got := CriticalLessons(doc); len(got) != 0 {
		t.Fatalf("capitalised priority must not match, got %+v", got)
	}
}

func TestFromBlock_Defaults(t *testing.T) {
	l := FromBlock(LessonBlock{ID: "L009", Title: "Malformed", Body: "- Priority: critical\nno rule here"})
	if l.Priority != Unknown {
		t.Fatalf("expected unknown priority, got %q", l.Priority)
	}
	if l.Rule != "" {
		t.Fatalf("expected empty rule, got %q", l.Rule)
	}
}

func TestParse_BlockKinds(t *testing.T) {
	blocks := Parse(sampleDoc)

	var lessons, archived, markers, loose int
	for _, b := range blocks {
		switch v := b.(type) {
		case LessonBlock:
			if v.Archived {
				archived++
			} else {
				lessons++
			}
		case ArchiveMarker:
			markers++
		case Unrecognized:
			loose++
		}
	}
	if lessons != 3 || archived != 1 || markers != 1 {
		t.Fatalf("unexpected block counts: lessons=%d archived=%d markers=%d", lessons, archived, markers)
	}
	if loose == 0 {
		t.Fatalf("expected preamble and comment as unrecognized blocks")
	}
	if first, ok := blocks[0].(Unrecognized); !ok || first.StartLine() != 1 {
		t.Fatalf("expected preamble at line 1, got %#v", blocks[0])
	}
}

func TestParse_CommentInsideLesson(t *testing.T) {
	doc := "### L001: Quiet\n- **Priority**: low\n<!--\n- **Priority**: critical\n-->\n- **Rule**: hush\n"
	if got := CriticalLessons(doc); len(got) != 0 {
		t.Fatalf("commented priority must not count, got %+v", got)
	}
	all := All(doc)
	if len(all) != 1 || all[0].Priority != "low" || all[0].Rule != "hush" {
		t.Fatalf("unexpected lesson %+v", all)
	}
}

func TestSummary(t *testing.T) {
	summary, ok := Summary(sampleDoc)
	if !ok {
		t.Fatalf("expected lessons")
	}
	want := "- **[CRITICAL] L001: Never commit secrets**\n  Read secrets from the environment only\n\n" +
		"- **[HIGH] L003: Check the migration order**\n  Run migrations before deploying the API"
	if summary != want {
		t.Fatalf("unexpected summary:\n%s\nwant:\n%s", summary, want)
	}
}

func TestSummary_NoneDistinguishable(t *testing.T) {
	for _, doc := range []string{"", "# Lessons Learned\n\n## Active Lessons\n", "### L001: x\n- **Priority**: low\n"} {
		if s, ok := Summary(doc); ok || s != "" {
			t.Fatalf("expected no summary for %q, got %q", doc, s)
		}
	}
}

func TestAll_IgnoresArchived(t *testing.T) {
	for _, l := range All(sampleDoc) {
		if l.ID == "L000" {
			t.Fatalf("archived lesson returned")
		}
	}
	if n := len(All(sampleDoc)); n != 3 {
		t.Fatalf("expected 3 active lessons, got %d", n)
	}
}

func TestRank(t *testing.T) {
	order := []string{Critical, High, Normal, Low, Unknown}
	for i := 1; i < len(order); i++ {
		if Rank(order[i-1]) >= Rank(order[i]) {
			t.Fatalf("rank not strictly increasing at %s", order[i])
		}
	}
	if Rank("urgent") != Rank(Unknown) {
		t.Fatalf("unrecognised priorities must rank with unknown")
	}
}
