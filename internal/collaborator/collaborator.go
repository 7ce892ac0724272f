// Package collaborator supplies the per-hospital "verify and scrape" step of
// a reconciliation run: locating the hospital and fetching its doctor listing.
package collaborator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/roster-cli/internal/location"
	"github.com/sells-group/roster-cli/internal/model"
)

// Collaborator verifies a hospital and returns its scraped doctor listing.
type Collaborator interface {
	VerifyAndScrape(ctx context.Context, hospitalName, address string) (*model.ScrapeOutcome, error)
}

// Resolver decides whether a hospital name and address identify a real facility.
type Resolver interface {
	Resolve(ctx context.Context, hospitalName, address string) model.LocationVerdict
}

// DoctorScraper fetches the doctors listed on a hospital's website.
type DoctorScraper interface {
	ScrapeDoctors(ctx context.Context, hospitalName, address string) ([]model.ScrapedDoctor, error)
}

// Locating resolves the hospital first and only scrapes verified hospitals.
type Locating struct {
	resolver Resolver
	scraper  DoctorScraper
}

// NewLocating creates a Locating collaborator. scraper may be nil, in which
// case verified hospitals come back with an empty listing and an error.
func NewLocating(resolver Resolver, scraper DoctorScraper) *Locating {
	return &Locating{resolver: resolver, scraper: scraper}
}

// VerifyAndScrape implements Collaborator. Scrape failures keep the hospital
// verified and are reported in the outcome's Error.
func (l *Locating) VerifyAndScrape(ctx context.Context, hospitalName, address string) (*model.ScrapeOutcome, error) {
	verdict := l.resolver.Resolve(ctx, hospitalName, address)
	if !verdict.Verified {
		return &model.ScrapeOutcome{
			Verified:               false,
			HospitalName:           hospitalName,
			HospitalAddress:        address,
			AddressConfidenceScore: verdict.ConfidenceScore,
			Source:                 verdict.Source,
			Error:                  verdict.Error,
		}, nil
	}

	out := &model.ScrapeOutcome{
		Verified:               true,
		HospitalName:           location.FoundName(verdict.CanonicalName),
		HospitalAddress:        verdict.CanonicalAddress,
		AddressConfidenceScore: verdict.ConfidenceScore,
		Source:                 verdict.Source,
	}
	if out.HospitalAddress == "" {
		out.HospitalAddress = address
	}
	if lat, lng, ok := verdict.Coordinates(); ok {
		out.Latitude, out.Longitude = &lat, &lng
	}

	if l.scraper == nil {
		out.Error = "Failed to scrape doctors: no scraper configured"
		return out, nil
	}

	doctors, err := l.scrape(ctx, hospitalName, address)
	if err != nil {
		zap.L().Warn("collaborator: scrape failed",
			zap.String("hospital", hospitalName),
			zap.Error(err),
		)
		out.Error = scrapeFailure(err)
		return out, nil
	}

	out.Doctors = doctors
	return out, nil
}

// scrape converts a scraper panic into an error.
func (l *Locating) scrape(ctx context.Context, hospitalName, address string) (doctors []model.ScrapedDoctor, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r}
		}
	}()
	return l.scraper.ScrapeDoctors(ctx, hospitalName, address)
}

type panicError struct {
	value any
}

func (e *panicError) Error() string {
	return fmt.Sprint(e.value)
}

func scrapeFailure(err error) string {
	var pe *ParseError
	var pnc *panicError
	switch {
	case errors.As(err, &pe):
		return "Failed to parse scraped data: " + pe.Err.Error()
	case errors.As(err, &pnc):
		return "Scraping failed: " + pnc.Error()
	default:
		return "Failed to scrape doctors: " + err.Error()
	}
}

var _ Collaborator = (*Locating)(nil)
