package link

// skeletonDirs are created under every new storage path.
var skeletonDirs = []string{
	".agents/_archive",
	".checkpoints",
	".inputs",
	".memory/canonical",
	".memory/disposable",
	".memory/working",
	".outputs/_drafts",
	".project-catalog/agents",
	".project-catalog/archive",
	".project-catalog/decisions",
	".project-catalog/errors",
	".project-catalog/handoffs",
	".project-catalog/sessions",
	".rules",
	".takeover/agent-templates",
	".takeover/audits",
	".takeover/evidence",
	".templates",
}

// migrateFiles and migrateDirs are the top-level names moved out of a
// working tree by Migrate. Anything else stays where it is.
var (
	migrateFiles = []string{
		"START_HERE.md",
		"ORCHESTRATOR.md",
		"COMMANDS.md",
		"HANDOFF_PROMPT.md",
		"HARD_STOPS.md",
		"LESSONS_LEARNED.md",
		"NON_GOALS.md",
		"OVERSIGHT_DASHBOARD.md",
		"PROJECT_STATE.json",
		"PROJECT_META.json",
		"CAPABILITIES.json",
	}
	migrateDirs = []string{
		".agents",
		".checkpoints",
		".inputs",
		".memory",
		".outputs",
		".project-catalog",
		".rules",
		".takeover",
		".templates",
	}
)

// SessionsDir is the session ledger directory relative to a storage path.
const SessionsDir = ".project-catalog/sessions"
