package memory

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	billing "jpusap-cobranzas/internal/billing/domain"
)

// Seed is a YAML fixture used to populate the memory store in local mode.
type Seed struct {
	TenantID string        `yaml:"tenant_id"`
	Members  []SeedMember  `yaml:"members"`
	Charges  []SeedCharge  `yaml:"charges"`
	Payments []SeedPayment `yaml:"payments"`
}

type SeedMember struct {
	ID       string `yaml:"id"`
	FullName string `yaml:"full_name"`
	Phone    string `yaml:"phone"`
	Address  string `yaml:"address"`
}

type SeedCharge struct {
	ID       string `yaml:"id"`
	MemberID string `yaml:"empadronado_id"`
	Period   string `yaml:"periodo"`
	Amount   string `yaml:"monto_original"`
	Balance  string `yaml:"saldo"`
	DueAt    string `yaml:"fecha_vencimiento"`
	Voided   bool   `yaml:"anulado"`
}

type SeedPayment struct {
	ID       string `yaml:"id"`
	ChargeID string `yaml:"charge_id"`
	MemberID string `yaml:"empadronado_id"`
	Amount   string `yaml:"monto"`
	Status   string `yaml:"estado"`
	Method   string `yaml:"metodo_pago"`
	PaidAt   string `yaml:"fecha_pago"`
}

// Store bundles the three memory repositories.
type Store struct {
	Charges  *ChargeRepository
	Payments *PaymentRepository
	Members  *MemberRepository
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		Charges:  NewChargeRepository(),
		Payments: NewPaymentRepository(),
		Members:  NewMemberRepository(),
	}
}

// LoadSeedFile reads a YAML seed from path into the store.
func (s *Store) LoadSeedFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed: %w", err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("parse seed: %w", err)
	}
	return s.Load(seed)
}

// Load validates and inserts every seed record.
func (s *Store) Load(seed Seed) error {
	if seed.TenantID == "" {
		return billing.ErrEmptyTenantID
	}
	for _, m := range seed.Members {
		s.Members.Put(billing.Member{ID: m.ID, TenantID: seed.TenantID, FullName: m.FullName, Phone: m.Phone, Address: m.Address})
	}
	now := time.Now().UTC()
	for _, c := range seed.Charges {
		charge, err := c.toCharge(seed.TenantID, now)
		if err != nil {
			return fmt.Errorf("seed charge %s: %w", c.ID, err)
		}
		if err := s.Charges.Put(charge); err != nil {
			return fmt.Errorf("seed charge %s: %w", c.ID, err)
		}
	}
	payments := make([]billing.Payment, 0, len(seed.Payments))
	for _, p := range seed.Payments {
		payment, err := p.toPayment(seed.TenantID, now)
		if err != nil {
			return fmt.Errorf("seed payment %s: %w", p.ID, err)
		}
		payments = append(payments, payment)
	}
	return s.Payments.Create(context.Background(), payments...)
}

func (c SeedCharge) toCharge(tenantID string, now time.Time) (billing.Charge, error) {
	period, err := billing.ParsePeriod(c.Period)
	if err != nil {
		return billing.Charge{}, err
	}
	original, err := decimal.NewFromString(c.Amount)
	if err != nil {
		return billing.Charge{}, billing.ErrInvalidAmount
	}
	balance := original
	if c.Balance != "" {
		if balance, err = decimal.NewFromString(c.Balance); err != nil {
			return billing.Charge{}, billing.ErrInvalidAmount
		}
	}
	dueAt, err := parseSeedTime(c.DueAt)
	if err != nil {
		return billing.Charge{}, err
	}
	return billing.Charge{
		ID:             c.ID,
		TenantID:       tenantID,
		MemberID:       c.MemberID,
		Period:         period,
		OriginalAmount: original,
		Balance:        balance,
		DueAt:          dueAt,
		Voided:         c.Voided,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

func (p SeedPayment) toPayment(tenantID string, now time.Time) (billing.Payment, error) {
	amount, err := decimal.NewFromString(p.Amount)
	if err != nil {
		return billing.Payment{}, billing.ErrInvalidAmount
	}
	status := billing.PaymentPending
	if p.Status != "" {
		if status, err = billing.ParsePaymentStatus(p.Status); err != nil {
			return billing.Payment{}, err
		}
	}
	method, err := billing.ParsePaymentMethod(p.Method)
	if err != nil {
		return billing.Payment{}, err
	}
	paidAt := now
	if p.PaidAt != "" {
		if paidAt, err = parseSeedTime(p.PaidAt); err != nil {
			return billing.Payment{}, err
		}
	}
	return billing.Payment{
		ID:        p.ID,
		TenantID:  tenantID,
		ChargeID:  p.ChargeID,
		MemberID:  p.MemberID,
		Amount:    amount,
		Status:    status,
		Method:    method,
		PaidAt:    paidAt,
		CreatedAt: now,
	}, nil
}

func parseSeedTime(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid time %q", value)
}
