package storage

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// generateID generates a new UUID
func generateID() string {
	return uuid.New().String()
}

// parseCursor decodes a pagination cursor. An empty cursor starts from the
// newest deploy.
func parseCursor(cursor string) (int64, error) {
	if cursor == "" {
		return 0, nil
	}
	seq, err := strconv.ParseInt(cursor, 10, 64)
	if err != nil || seq <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidCursor, cursor)
	}
	return seq, nil
}

// deployListQuery builds the WHERE clause and args for listing deploys.
// placeholder renders the n-th (1-based) bind parameter.
func deployListQuery(filter DeployFilter, afterSeq int64, limit int, placeholder func(n int) string) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, placeholder(len(args))))
	}
	if afterSeq > 0 {
		add("seq < %s", afterSeq)
	}
	if filter.Account != "" {
		add("account = %s", strings.ToLower(filter.Account))
	}
	if filter.Operation != "" {
		add("operation = %s", filter.Operation)
	}
	if filter.Status != "" {
		add("status = %s", filter.Status)
	}
	if filter.ChainName != "" {
		add("chain_name = %s", filter.ChainName)
	}

	query := `SELECT ` + deployColumns + ` FROM deploys`
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, " AND ")
	}
	args = append(args, limit+1)
	query += ` ORDER BY seq DESC LIMIT ` + placeholder(len(args))
	return query, args
}

const deployColumns = `id, seq, hash, operation, entry_point, target, account, account_hash, chain_name, payment_motes, status, error_message, block_hash, cost, submitted_at, updated_at`

// paginate trims the extra row fetched to detect further pages.
func paginate(deploys []Deploy, limit int) *PaginatedResult[Deploy] {
	hasMore := len(deploys) > limit
	if hasMore {
		deploys = deploys[:limit]
	}
	var nextCursor string
	if hasMore && len(deploys) > 0 {
		nextCursor = strconv.FormatInt(deploys[len(deploys)-1].Seq, 10)
	}
	return &PaginatedResult[Deploy]{Data: deploys, HasMore: hasMore, NextCursor: nextCursor}
}
