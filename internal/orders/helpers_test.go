package orders

import "github.com/angelmondragon/rentloop-backend/pkg/pagination"

func paginationParams(limit int, cursor string) pagination.Params {
	return pagination.Params{Limit: limit, Cursor: cursor}
}
