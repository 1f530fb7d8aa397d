package sync

// The classifier is a pure function from one entry's joined prior/current
// observation to an action. The predicates are evaluated in a fixed order
// so each entry gets exactly one primary action; the only sanctioned
// second action is the download that follows a conflict materialization
// within the same pass (see selectForPhase).

// matchesConflict: both sides exist and both changed since the last
// completed sync. A prev mtime of 0 means the side had never been
// observed at a pass end, which cannot count as a change.
func matchesConflict(e *Entry) bool {
	return e.ExistsRemote && e.ExistsLocal &&
		e.RemoteMtimePrev != e.RemoteMtime &&
		e.LocalMtimePrev != e.LocalMtime &&
		e.RemoteMtimePrev != 0 &&
		e.LocalMtimePrev != 0
}

// matchesDownload: the path is new on the remote side, or the remote copy
// is newer than a previously synced local copy.
func matchesDownload(e *Entry) bool {
	return (!e.ExistsLocal && !e.Synced) ||
		(e.RemoteMtime > e.LocalMtime && e.Synced)
}

// matchesUpload: the path is new on the local side, or the local copy is
// newer than a previously synced remote copy.
func matchesUpload(e *Entry) bool {
	return (!e.ExistsRemote && !e.Synced) ||
		(e.RemoteMtime < e.LocalMtime && e.Synced)
}

// matchesDeleteRemote: the local copy of a synced path disappeared.
func matchesDeleteRemote(e *Entry) bool {
	return e.ExistsRemote && !e.ExistsLocal && e.Synced
}

// matchesDeleteLocal: the remote copy of a synced path disappeared.
// Scoped to the entry's own pair by construction.
func matchesDeleteLocal(e *Entry) bool {
	return !e.ExistsRemote && e.Synced
}

// Classify derives the single primary action for an entry, first match
// wins.
func Classify(e *Entry) Action {
	switch {
	case matchesConflict(e):
		return ActionConflict
	case matchesDownload(e):
		return ActionDownload
	case matchesUpload(e):
		return ActionUpload
	case matchesDeleteRemote(e):
		return ActionDeleteRemote
	case matchesDeleteLocal(e):
		return ActionDeleteLocal
	default:
		return ActionNone
	}
}

// selectForPhase returns the entries a phase acts on. For the download
// phase, entries still classified as conflicts are included when they
// match the download predicate: their local copy was renamed aside during
// the conflict phase of this same pass, and the original path is now a
// routine download.
func selectForPhase(entries []Entry, action Action) []Entry {
	var selected []Entry

	for i := range entries {
		e := &entries[i]
		got := Classify(e)

		if got == action {
			selected = append(selected, *e)
			continue
		}

		if action == ActionDownload && got == ActionConflict && matchesDownload(e) {
			selected = append(selected, *e)
		}
	}

	return selected
}
