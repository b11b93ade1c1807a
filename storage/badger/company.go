package badger

import (
	"context"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/quarry/core"
	"github.com/poiesic/quarry/storage"
)

// CompanyRepository implements storage.CompanyRepository for BadgerDB.
type CompanyRepository struct {
	backend *Backend
}

var _ storage.CompanyRepository = (*CompanyRepository)(nil)

// NewCompanyRepository creates a new CompanyRepository.
func NewCompanyRepository(backend *Backend) *CompanyRepository {
	return &CompanyRepository{backend: backend}
}

// Close is a no-op; the backend owns all resources.
func (r *CompanyRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *CompanyRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// AddCompanies stores new companies.
func (r *CompanyRepository) AddCompanies(ctx context.Context, companies ...*core.Company) ([]*core.Company, error) {
	err := r.backend.Update(ctx, func(tx *badger.Txn) error {
		for _, company := range companies {
			if err := core.ValidateCompany(company); err != nil {
				return err
			}
			company.Ticker = core.NormalizeTicker(company.Ticker)

			tickerKey := makeCompanyTickerKey(company.Ticker)
			if _, err := tx.Get(tickerKey); err == nil {
				return storage.ErrDuplicateKey
			} else if err != badger.ErrKeyNotFound {
				return err
			}

			nextID, err := r.backend.NextID(companySeq)
			if err != nil {
				return err
			}
			company.Id = core.ID(nextID)
			company.InsertedAt = time.Now().UTC()
			company.UpdatedAt = company.InsertedAt

			if err := writeRecord(tx, makeCompanyKey(company.Id), company, storage.MarshalCompany); err != nil {
				return err
			}
			if err := tx.Set(tickerKey, storage.MarshalID(company.Id)); err != nil {
				return err
			}
		}
		return nil
	})
	return companies, err
}

// UpdateCompany replaces an existing company, moving the ticker index if the ticker changed.
func (r *CompanyRepository) UpdateCompany(ctx context.Context, company *core.Company) error {
	if err := core.ValidateCompany(company); err != nil {
		return err
	}
	return r.backend.Update(ctx, func(tx *badger.Txn) error {
		old, err := readRecord(tx, makeCompanyKey(company.Id), storage.UnmarshalCompany)
		if err != nil {
			return err
		}
		if old == nil {
			return storage.ErrNotFound
		}

		company.Ticker = core.NormalizeTicker(company.Ticker)
		if company.Ticker != old.Ticker {
			newKey := makeCompanyTickerKey(company.Ticker)
			if _, err := tx.Get(newKey); err == nil {
				return storage.ErrDuplicateKey
			} else if err != badger.ErrKeyNotFound {
				return err
			}
			if err := tx.Delete(makeCompanyTickerKey(old.Ticker)); err != nil {
				return err
			}
			if err := tx.Set(newKey, storage.MarshalID(company.Id)); err != nil {
				return err
			}
		}

		company.InsertedAt = old.InsertedAt
		company.UpdatedAt = time.Now().UTC()
		return writeRecord(tx, makeCompanyKey(company.Id), company, storage.MarshalCompany)
	})
}

// GetCompany retrieves a company by ID.
func (r *CompanyRepository) GetCompany(ctx context.Context, id core.ID) (*core.Company, error) {
	var result *core.Company
	err := r.backend.View(ctx, func(tx *badger.Txn) error {
		var err error
		result, err = readRecord(tx, makeCompanyKey(id), storage.UnmarshalCompany)
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	})
	return result, err
}

// GetCompanyByTicker retrieves a company through the ticker index.
func (r *CompanyRepository) GetCompanyByTicker(ctx context.Context, ticker string) (*core.Company, error) {
	var result *core.Company
	err := r.backend.View(ctx, func(tx *badger.Txn) error {
		id, err := readIndexedID(tx, makeCompanyTickerKey(core.NormalizeTicker(ticker)))
		if err != nil {
			return err
		}
		result, err = readRecord(tx, makeCompanyKey(id), storage.UnmarshalCompany)
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	})
	return result, err
}

// ListCompanies returns every company ordered by ID.
func (r *CompanyRepository) ListCompanies(ctx context.Context) ([]*core.Company, error) {
	return r.SearchCompanies(ctx, "")
}

// SearchCompanies filters companies by a case-insensitive name or ticker fragment.
func (r *CompanyRepository) SearchCompanies(ctx context.Context, query string) ([]*core.Company, error) {
	needle := strings.ToLower(strings.TrimSpace(query))
	var results []*core.Company
	err := r.backend.View(ctx, func(tx *badger.Txn) error {
		return ScanPrefix(tx, []byte(companyPrefix), func(_, val []byte) error {
			company, err := storage.UnmarshalCompany(val)
			if err != nil {
				return err
			}
			if needle == "" ||
				strings.Contains(strings.ToLower(company.Name), needle) ||
				strings.Contains(strings.ToLower(company.Ticker), needle) {
				results = append(results, company)
			}
			return nil
		})
	})
	return results, err
}
