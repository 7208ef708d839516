package shared

import "github.com/google/uuid"

// MoveTo returns ids with id moved to position pos, clamped to the list
// bounds. ok is false when id is not in ids.
func MoveTo(ids []uuid.UUID, id uuid.UUID, pos int) (out []uuid.UUID, ok bool) {
	from := -1
	for i, v := range ids {
		if v == id {
			from = i
			break
		}
	}
	if from < 0 {
		return nil, false
	}
	pos = max(0, min(pos, len(ids)-1))
	out = make([]uuid.UUID, 0, len(ids))
	for i, v := range ids {
		if i != from {
			out = append(out, v)
		}
	}
	out = append(out[:pos], append([]uuid.UUID{id}, out[pos:]...)...)
	return out, true
}

// Step turns an "up" or "down" form value into a target position for the
// item currently at index cur.
func Step(cur int, direction string) int {
	switch direction {
	case "up":
		return cur - 1
	case "down":
		return cur + 1
	default:
		return cur
	}
}
