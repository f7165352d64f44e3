package repo

import (
	"context"
	"fmt"
)

// Drugs answers catalogue questions about drugs.
type Drugs struct {
	Q Querier
}

// Exists reports whether a drug with the given RxCUI is on file.
func (d Drugs) Exists(ctx context.Context, rxcui string) (bool, error) {
	var exists bool
	err := d.Q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM drug WHERE rxcui = $1)`, rxcui).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("lookup drug %s: %w", rxcui, err)
	}
	return exists, nil
}
