package client

import "context"

// Surface is the boundary to the diagram editor widget. Import and export
// are asynchronous operations against the renderer; the agent awaits them
// before touching its suppression state. Markers flag elements locked by
// other users.
type Surface interface {
	ImportContent(ctx context.Context, content string) error
	ExportContent(ctx context.Context) (string, error)
	AddLockMarker(elementID, userName string)
	RemoveLockMarker(elementID string)
}

// diffSelections splits two selection sets into the ids that left and the
// ids that entered, ignoring the intersection.
func diffSelections(oldIDs, newIDs []string) (left, entered []string) {
	oldSet := make(map[string]bool, len(oldIDs))
	for _, id := range oldIDs {
		oldSet[id] = true
	}
	newSet := make(map[string]bool, len(newIDs))
	for _, id := range newIDs {
		newSet[id] = true
	}
	for _, id := range oldIDs {
		if !newSet[id] {
			left = append(left, id)
		}
	}
	for _, id := range newIDs {
		if !oldSet[id] {
			entered = append(entered, id)
		}
	}
	return left, entered
}
