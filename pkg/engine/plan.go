package engine

// withWikiPlan is the fixed step order for wiki-enabled sites. Seeding the
// export wiki from the snapshot happens before the push so the remote wiki
// exclusion and the local tree stay coherent; the pull afterwards brings in
// edits made live on the server since the last publish.
var withWikiPlan = []StepKind{
	StepValidate,
	StepSeedWiki,
	StepPush,
	StepPullWiki,
	StepUpdateSnapshot,
	StepArchive,
}

// withoutWikiPlan is the fixed step order for plain static sites.
var withoutWikiPlan = []StepKind{
	StepValidate,
	StepPush,
	StepArchive,
}

// PlanFor returns the ordered steps a publish of the profile will run.
// The returned slice is a copy; callers may annotate it freely.
func PlanFor(hasWiki bool) []StepKind {
	src := withoutWikiPlan
	if hasWiki {
		src = withWikiPlan
	}
	plan := make([]StepKind, len(src))
	copy(plan, src)
	return plan
}
