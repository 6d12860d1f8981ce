package domain

import (
	"context"
	"errors"
	"fmt"
)

// Subordinates returns every employee below phone in the reporting hierarchy,
// breadth first. The directory may contain manager cycles, so the walk keeps a
// visited set and never revisits a phone; the root itself is never returned.
func Subordinates(ctx context.Context, dir DirectoryReader, phone string) ([]*Employee, error) {
	visited := map[string]struct{}{phone: {}}
	queue := []string{phone}

	var out []*Employee
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		reports, err := dir.FindDirectReports(ctx, current)
		if err != nil {
			return nil, fmt.Errorf("domain.Subordinates: %s: %w", current, err)
		}

		for _, r := range reports {
			if _, seen := visited[r.Phone]; seen {
				continue
			}
			visited[r.Phone] = struct{}{}
			out = append(out, r)
			queue = append(queue, r.Phone)
		}
	}

	return out, nil
}

// Managers returns the chain of managers above phone, nearest first. The walk
// stops at a root, at a missing manager record, or when a cycle is detected.
func Managers(ctx context.Context, dir DirectoryReader, phone string) ([]*Employee, error) {
	visited := map[string]struct{}{phone: {}}

	current, err := dir.FindByPhoneOrEmail(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("domain.Managers: %w", err)
	}

	var out []*Employee
	for !current.IsRoot() {
		if _, seen := visited[current.ManagerPhone]; seen {
			break
		}
		visited[current.ManagerPhone] = struct{}{}

		manager, findErr := dir.FindByPhoneOrEmail(ctx, current.ManagerPhone)
		if errors.Is(findErr, ErrNotFound) {
			break
		}
		if findErr != nil {
			return nil, fmt.Errorf("domain.Managers: %s: %w", current.ManagerPhone, findErr)
		}
		out = append(out, manager)
		current = manager
	}

	return out, nil
}

// IsInSubtree reports whether target is manager itself or reports to manager
// directly or transitively. It walks up from target, which touches one record
// per level instead of the manager's whole subtree.
func IsInSubtree(ctx context.Context, dir DirectoryReader, manager, target string) (bool, error) {
	if manager == target {
		return true, nil
	}

	chain, err := Managers(ctx, dir, target)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	for _, m := range chain {
		if m.Phone == manager {
			return true, nil
		}
	}
	return false, nil
}
