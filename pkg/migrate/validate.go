package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/multierr"
)

const (
	upMarker   = "-- +goose Up"
	downMarker = "-- +goose Down"
)

var sqlFileRe = regexp.MustCompile(`^(\d{14})_[a-z0-9_]+\.sql$`)

// Statements that would rewrite ledger history. Only the Up section is
// checked; Down sections may drop the table.
var ledgerMutationRes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bUPDATE\s+wallet_transactions\b`),
	regexp.MustCompile(`(?i)\bDELETE\s+FROM\s+wallet_transactions\b`),
	regexp.MustCompile(`(?i)\bTRUNCATE\s+(TABLE\s+)?wallet_transactions\b`),
	regexp.MustCompile(`(?i)\bDROP\s+TRIGGER\s+(IF\s+EXISTS\s+)?wallet_transactions_no_update\b`),
}

// ValidateDir checks every migration in dir and reports all problems at once:
// filename format, duplicate versions, goose markers and ledger mutations.
func ValidateDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("dir is required")
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read dir %q: %w", dir, err)
	}

	var errs error
	seen := map[string]string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}

		m := sqlFileRe.FindStringSubmatch(name)
		if m == nil {
			errs = multierr.Append(errs, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name))
			continue
		}
		if prev, ok := seen[m[1]]; ok {
			errs = multierr.Append(errs, fmt.Errorf("duplicate migration version %s in %q and %q", m[1], prev, name))
		}
		seen[m[1]] = name

		b, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("read file %q: %w", name, err))
			continue
		}
		errs = multierr.Append(errs, validateContent(name, string(b)))
	}
	return errs
}

func validateContent(name, txt string) error {
	up := strings.Index(txt, upMarker)
	down := strings.Index(txt, downMarker)
	switch {
	case up < 0:
		return fmt.Errorf("migration %q missing %q", name, upMarker)
	case down < 0:
		return fmt.Errorf("migration %q missing %q", name, downMarker)
	case down < up:
		return fmt.Errorf("migration %q has Down before Up", name)
	}

	var errs error
	upSection := txt[up:down]
	for _, re := range ledgerMutationRes {
		if loc := re.FindString(upSection); loc != "" {
			errs = multierr.Append(errs, fmt.Errorf("migration %q mutates ledger history: %q", name, loc))
		}
	}
	return errs
}
