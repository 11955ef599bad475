package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ekameshwar10/Laundry-track/internal/cache"
	"github.com/ekameshwar10/Laundry-track/internal/domain"
	"github.com/ekameshwar10/Laundry-track/internal/ledger"
	"github.com/ekameshwar10/Laundry-track/internal/report"
)

// ErrForbidden marks calls made without the role an entry point requires.
var ErrForbidden = errors.New("forbidden")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	ledger    ledger.Store
	archiver  ledger.Archiver
	reports   cache.ReportCache
	reportTTL time.Duration

	// revision bumps on every successful mutation; report cache keys carry
	// it so a write can never serve a stale report.
	revision atomic.Uint64
}

func New(store ledger.Store, archiver ledger.Archiver, reports cache.ReportCache, reportTTL time.Duration) *Service {
	if reports == nil {
		reports = cache.NoopReportCache{}
	}
	if reportTTL <= 0 {
		reportTTL = 30 * time.Second
	}

	return &Service{
		ledger:    store,
		archiver:  archiver,
		reports:   reports,
		reportTTL: reportTTL,
	}
}

func (s *Service) SubmitRecord(ctx context.Context, req domain.SubmitRecordRequest) (domain.Record, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleCollector {
		return domain.Record{}, fmt.Errorf("%w: collector role required", ErrForbidden)
	}

	if strings.TrimSpace(req.Signature) == "" {
		return domain.Record{}, fmt.Errorf("%w: signature required", ledger.ErrInvalidRecord)
	}

	// Pre-check deliveries against the verified pool so the caller gets the
	// available quantity in the error. The store repeats the check at commit.
	if req.Type == domain.TypeDelivery {
		for _, line := range req.Items {
			available, err := s.ledger.NetAvailable(ctx, strings.TrimSpace(req.Customer), line.Name)
			if err != nil {
				return domain.Record{}, err
			}
			if line.Qty > available {
				return domain.Record{}, fmt.Errorf("%w: %s for %s (requested %d, available %d)",
					ledger.ErrPoolExceeded, line.Name, req.Customer, line.Qty, available)
			}
		}
	}

	created, err := s.ledger.AppendRecord(ctx, domain.Record{
		CollectorID:   actor.Username,
		CollectorName: actor.DisplayName,
		Customer:      req.Customer,
		Type:          req.Type,
		Items:         req.Items,
		InCharge:      req.InCharge,
		Signature:     req.Signature,
	})
	if err != nil {
		return domain.Record{}, err
	}
	s.revision.Add(1)

	if s.archiver != nil {
		if err := s.archiver.SaveRecord(ctx, *created); err != nil {
			log.Printf("[service] WARN: failed to archive record id=%s: %v", created.ID, err)
		}
	}

	return *created, nil
}

func (s *Service) VerifyRecord(ctx context.Context, id string, req domain.VerifyRecordRequest) (domain.Record, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleReceiver {
		return domain.Record{}, fmt.Errorf("%w: receiver role required", ErrForbidden)
	}

	verified, err := s.ledger.ApplyVerification(ctx, id, req.VerifiedItems, req.Remark, actor.Username, time.Now().UTC())
	if err != nil {
		return domain.Record{}, err
	}
	s.revision.Add(1)

	if s.archiver != nil {
		if err := s.archiver.SaveVerification(ctx, *verified); err != nil {
			log.Printf("[service] WARN: failed to archive verification id=%s: %v", verified.ID, err)
		}
	}

	return *verified, nil
}

func (s *Service) GetRecord(ctx context.Context, id string) (domain.Record, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.Record{}, fmt.Errorf("%w: authentication required", ErrForbidden)
	}

	rec, err := s.ledger.GetRecordByID(ctx, id)
	if err != nil {
		return domain.Record{}, err
	}
	// Collectors only see their own records; a foreign id reads as absent.
	if actor.Role == domain.RoleCollector && rec.CollectorID != actor.Username {
		return domain.Record{}, ledger.ErrNotFound
	}
	return *rec, nil
}

func (s *Service) ListRecords(ctx context.Context, filter domain.RecordListFilter) (domain.RecordListResponse, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.RecordListResponse{}, fmt.Errorf("%w: authentication required", ErrForbidden)
	}
	if actor.Role == domain.RoleCollector {
		filter.CollectorID = actor.Username
	}

	statusFilter := filter.Status
	filter.Status = ""
	inScope, err := s.ledger.ListRecords(ctx, filter)
	if err != nil {
		return domain.RecordListResponse{}, err
	}

	counts := map[string]int{
		domain.StatusPending:  0,
		domain.StatusApproved: 0,
		domain.StatusDeviated: 0,
	}
	records := make([]domain.Record, 0, len(inScope))
	for _, rec := range inScope {
		counts[rec.VerificationStatus]++
		if statusFilter != "" && rec.VerificationStatus != statusFilter {
			continue
		}
		records = append(records, rec)
	}

	return domain.RecordListResponse{
		Records:  records,
		Counts:   counts,
		Total:    len(inScope),
		Filtered: len(records),
	}, nil
}

func (s *Service) NetAvailable(ctx context.Context, customer string, item string) (domain.PoolResponse, error) {
	if _, ok := ActorFromContext(ctx); !ok {
		return domain.PoolResponse{}, fmt.Errorf("%w: authentication required", ErrForbidden)
	}
	customer = strings.TrimSpace(customer)
	item = strings.TrimSpace(item)
	if !domain.IsKnownCustomer(customer) {
		return domain.PoolResponse{}, fmt.Errorf("%w: unknown customer %q", ledger.ErrInvalidRecord, customer)
	}
	if !domain.IsKnownItem(item) {
		return domain.PoolResponse{}, fmt.Errorf("%w: unknown item %q", ledger.ErrInvalidRecord, item)
	}

	available, err := s.ledger.NetAvailable(ctx, customer, item)
	if err != nil {
		return domain.PoolResponse{}, err
	}
	return domain.PoolResponse{Customer: customer, Item: item, Available: available}, nil
}

func (s *Service) SummaryReport(ctx context.Context, filter report.RowFilter, groupBy string) (domain.SummaryReport, error) {
	var out domain.SummaryReport
	err := s.buildReport(ctx, "summary", filter, groupBy, &out, func(records []domain.Record) any {
		return report.BuildSummary(records, []string{domain.StatusApproved, domain.StatusDeviated}, filter, groupBy)
	})
	return out, err
}

func (s *Service) PreVerificationReport(ctx context.Context, filter report.RowFilter, groupBy string) (domain.SummaryReport, error) {
	var out domain.SummaryReport
	err := s.buildReport(ctx, "pre-verification", filter, groupBy, &out, func(records []domain.Record) any {
		return report.BuildSummary(records, []string{domain.StatusPending}, filter, groupBy)
	})
	return out, err
}

func (s *Service) ManagementReport(ctx context.Context, filter report.RowFilter) (domain.ManagementReport, error) {
	var out domain.ManagementReport
	err := s.buildReport(ctx, "management", filter, "", &out, func(records []domain.Record) any {
		return report.BuildManagement(records, filter)
	})
	return out, err
}

// buildReport runs the receiver gate, the cache lookup and the ledger
// snapshot shared by all three report regimes. dst must be a pointer.
func (s *Service) buildReport(ctx context.Context, kind string, filter report.RowFilter, groupBy string, dst any, build func([]domain.Record) any) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleReceiver {
		return fmt.Errorf("%w: receiver role required", ErrForbidden)
	}

	key := s.reportCacheKey(kind, filter, groupBy)
	if payload, hit, err := s.reports.Get(ctx, key); err != nil {
		log.Printf("[service] WARN: report cache get failed key=%s: %v", key, err)
	} else if hit {
		if err := json.Unmarshal(payload, dst); err == nil {
			return nil
		}
		log.Printf("[service] WARN: discarding undecodable cached report key=%s", key)
	}

	records, err := s.ledger.ListRecords(ctx, domain.RecordListFilter{})
	if err != nil {
		return err
	}
	built := build(records)

	payload, err := json.Marshal(built)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return err
	}
	if err := s.reports.Set(ctx, key, payload, s.reportTTL); err != nil {
		log.Printf("[service] WARN: report cache set failed key=%s: %v", key, err)
	}
	return nil
}

func (s *Service) reportCacheKey(kind string, filter report.RowFilter, groupBy string) string {
	from := ""
	if filter.From != nil {
		from = filter.From.UTC().Format(time.RFC3339)
	}
	to := ""
	if filter.To != nil {
		to = filter.To.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("report:%s:v%d:%s|%s|%s|%s|%s|%s",
		kind, s.revision.Load(), filter.CollectorID, filter.Customer, filter.Item, from, to, groupBy)
}
