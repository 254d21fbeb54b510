package repository

import "github.com/hitoshi/socialfeed/internal/model"

func postIDs(posts []*model.Post) []int64 {
	ids := make([]int64, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	return ids
}
