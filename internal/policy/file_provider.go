package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/finvela/gl-approvals/internal/platform/errors"
	"github.com/finvela/gl-approvals/internal/platform/logger"
	"github.com/finvela/gl-approvals/internal/routing"
)

// policyFile is the on-disk YAML schema.
type policyFile struct {
	Companies []companyConfig `yaml:"companies"`
}

type companyConfig struct {
	CompanyID  string            `yaml:"company_id"`
	Thresholds []thresholdConfig `yaml:"thresholds"`
	Approvers  []approverConfig  `yaml:"approvers"`
}

type thresholdConfig struct {
	Tier string  `yaml:"tier"`
	Min  string  `yaml:"min"`
	Max  *string `yaml:"max"` // omitted = unbounded above
}

type approverConfig struct {
	UserID     string  `yaml:"user_id"`
	Tier       string  `yaml:"tier"`
	DelegateTo *string `yaml:"delegate_to"`
}

// FileProvider serves routing policy from a YAML file. Edits are picked
// up via fsnotify and swapped in atomically; a broken edit keeps the
// last good snapshot.
type FileProvider struct {
	path string
	log  *logger.Logger

	mu       sync.RWMutex
	policies map[string]*routing.CompanyPolicy
}

// NewFileProvider loads and validates the policy file.
func NewFileProvider(path string, log *logger.Logger) (*FileProvider, error) {
	p := &FileProvider{path: path, log: log}
	if err := p.Reload(); err != nil {
		return nil, err
	}
	return p, nil
}

// CompanyPolicy returns the current snapshot for a company.
func (p *FileProvider) CompanyPolicy(_ context.Context, companyID string) (*routing.CompanyPolicy, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	policy, ok := p.policies[companyID]
	if !ok {
		return nil, errors.Configuration(fmt.Sprintf("no approval policy configured for company %s", companyID))
	}
	return policy, nil
}

// Reload re-reads the policy file and swaps the snapshot set.
func (p *FileProvider) Reload() error {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConfiguration, "failed to read policy file")
	}

	var file policyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return errors.Wrap(err, errors.ErrCodeConfiguration, "failed to parse policy file")
	}

	policies := make(map[string]*routing.CompanyPolicy, len(file.Companies))
	for _, company := range file.Companies {
		policy, err := p.buildPolicy(company)
		if err != nil {
			return err
		}
		policies[company.CompanyID] = policy
	}

	p.mu.Lock()
	p.policies = policies
	p.mu.Unlock()
	return nil
}

// Watch reloads the policy file on filesystem changes until ctx is done.
// The parent directory is watched because editors typically replace the
// file rather than writing in place.
func (p *FileProvider) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create policy watcher: %w", err)
	}

	dir := filepath.Dir(p.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("watch policy directory %s: %w", dir, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(p.path) {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				if err := p.Reload(); err != nil {
					p.log.Error().Err(err).Str("path", p.path).
						Msg("Policy file reload failed; keeping last good snapshot")
					continue
				}
				p.log.Info().Str("path", p.path).Msg("Policy file reloaded")
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				p.log.Warn().Err(err).Msg("Policy watcher error")
			}
		}
	}()

	return nil
}

// buildPolicy converts one company's file section into a routing
// snapshot, validating that the thresholds cover [0, ∞).
func (p *FileProvider) buildPolicy(company companyConfig) (*routing.CompanyPolicy, error) {
	if company.CompanyID == "" {
		return nil, errors.Configuration("policy file: company_id is required")
	}

	thresholds := make([]routing.Threshold, 0, len(company.Thresholds))
	for _, tc := range company.Thresholds {
		tier := routing.Tier(tc.Tier)
		if !tier.Valid() {
			return nil, errors.Configuration(fmt.Sprintf(
				"policy file: company %s: unknown tier %q", company.CompanyID, tc.Tier))
		}

		min, err := decimal.NewFromString(tc.Min)
		if err != nil {
			return nil, errors.Configuration(fmt.Sprintf(
				"policy file: company %s: invalid min amount %q", company.CompanyID, tc.Min))
		}

		th := routing.Threshold{Tier: tier, Min: min}
		if tc.Max != nil {
			max, err := decimal.NewFromString(*tc.Max)
			if err != nil {
				return nil, errors.Configuration(fmt.Sprintf(
					"policy file: company %s: invalid max amount %q", company.CompanyID, *tc.Max))
			}
			th.Max = &max
		}
		thresholds = append(thresholds, th)
	}

	if err := validateCoverage(company.CompanyID, thresholds, p.log); err != nil {
		return nil, err
	}

	roster := make(map[routing.Tier][]routing.Approver)
	for _, ac := range company.Approvers {
		tier := routing.Tier(ac.Tier)
		if !tier.Valid() {
			return nil, errors.Configuration(fmt.Sprintf(
				"policy file: company %s: approver %s: unknown tier %q",
				company.CompanyID, ac.UserID, ac.Tier))
		}
		roster[tier] = append(roster[tier], routing.Approver{
			UserID:     ac.UserID,
			Tier:       tier,
			DelegateTo: ac.DelegateTo,
		})
	}

	return &routing.CompanyPolicy{
		CompanyID:  company.CompanyID,
		Thresholds: thresholds,
		Roster:     roster,
	}, nil
}

// validateCoverage checks that the thresholds cover [0, ∞). Overlap is
// tolerated (the router tie-breaks toward the narrower band) but logged.
func validateCoverage(companyID string, thresholds []routing.Threshold, log *logger.Logger) error {
	if err := routing.ValidateCoverage(thresholds); err != nil {
		return errors.Configuration(fmt.Sprintf("policy file: company %s: %v", companyID, err))
	}

	if log != nil {
		for _, tier := range routing.Overlaps(thresholds) {
			log.Warn().Str("company_id", companyID).Str("tier", string(tier)).
				Msg("Overlapping thresholds; narrowest-tier tie-break applies")
		}
	}
	return nil
}
