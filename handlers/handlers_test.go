package handlers_test

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/xraph/workq/codec"
	"github.com/xraph/workq/handlers"
	"github.com/xraph/workq/job"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []handlers.Email
}

func (f *fakeMailer) Send(_ context.Context, msg handlers.Email) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	return nil
}

type fakeGateway struct {
	charges map[string]int64
	err     error
}

func (f *fakeGateway) Charge(_ context.Context, p handlers.Payment) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.charges[p.OrderID] = p.AmountCents
	return "ch_test", nil
}

// run encodes payload and invokes the registered handler for jobType.
func run(t *testing.T, reg *job.Registry, c codec.Codec, jobType string, payload any) error {
	t.Helper()
	h, ok := reg.Lookup(jobType)
	if !ok {
		t.Fatalf("no handler for %q", jobType)
	}
	data, err := c.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return h.Handle(context.Background(), job.New(jobType, data, job.Options{MaxRetries: 3}))
}

func TestRegisterAll_RegistersEveryType(t *testing.T) {
	reg := job.NewRegistry()
	if err := handlers.RegisterAll(reg, handlers.Deps{Logger: slog.Default()}); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}
	want := []string{handlers.TypeGenerateReport, handlers.TypeProcessPayment, handlers.TypeSendEmail}
	got := reg.Types()
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Fatalf("Types = %v, want %v", got, want)
	}

	if err := handlers.RegisterAll(reg, handlers.Deps{}); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestSendEmail(t *testing.T) {
	mailer := &fakeMailer{}
	reg := job.NewRegistry()
	if err := handlers.RegisterAll(reg, handlers.Deps{Mailer: mailer}); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}

	msg := handlers.Email{To: "alice@example.com", Subject: "Welcome"}
	if err := run(t, reg, codec.Default, handlers.TypeSendEmail, msg); err != nil {
		t.Fatalf("send-email: %v", err)
	}
	if len(mailer.sent) != 1 || mailer.sent[0] != msg {
		t.Fatalf("sent = %+v", mailer.sent)
	}

	err := run(t, reg, codec.Default, handlers.TypeSendEmail, handlers.Email{Subject: "nobody"})
	if !errors.Is(err, handlers.ErrNoRecipient) {
		t.Fatalf("expected ErrNoRecipient, got %v", err)
	}
}

func TestProcessPayment(t *testing.T) {
	gw := &fakeGateway{charges: make(map[string]int64)}
	reg := job.NewRegistry()
	if err := handlers.RegisterAll(reg, handlers.Deps{Gateway: gw, Codec: codec.Msgpack{}}); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}

	tests := []struct {
		name    string
		payment handlers.Payment
		wantErr error
	}{
		{"valid", handlers.Payment{OrderID: "ORD-1", AmountCents: 1999, Currency: "EUR"}, nil},
		{"zero amount", handlers.Payment{OrderID: "ORD-2"}, handlers.ErrInvalidAmount},
		{"negative amount", handlers.Payment{OrderID: "ORD-3", AmountCents: -5}, handlers.ErrInvalidAmount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := run(t, reg, codec.Msgpack{}, handlers.TypeProcessPayment, tt.payment)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
	if gw.charges["ORD-1"] != 1999 || len(gw.charges) != 1 {
		t.Errorf("charges = %v", gw.charges)
	}
}

func TestProcessPayment_GatewayError(t *testing.T) {
	gw := &fakeGateway{err: errors.New("card declined")}
	h := handlers.ProcessPayment(gw, slog.Default())
	err := h(context.Background(), handlers.Payment{OrderID: "ORD-9", AmountCents: 100})
	if err == nil || !strings.Contains(err.Error(), "card declined") {
		t.Fatalf("err = %v", err)
	}
}

func TestGenerateReport(t *testing.T) {
	sink := handlers.NewMemorySink()
	reg := job.NewRegistry()
	if err := handlers.RegisterAll(reg, handlers.Deps{Sink: sink}); err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}

	report := handlers.Report{
		Name:    "daily",
		Columns: []string{"order", "amount"},
		Rows:    [][]string{{"ORD-1", "19.99"}, {"ORD-2", "5,00"}},
	}
	if err := run(t, reg, codec.Default, handlers.TypeGenerateReport, report); err != nil {
		t.Fatalf("generate-report: %v", err)
	}

	got, ok := sink.Get("daily.csv")
	if !ok {
		t.Fatal("report not written")
	}
	want := "order,amount\nORD-1,19.99\nORD-2,\"5,00\"\n"
	if string(got) != want {
		t.Errorf("csv = %q, want %q", got, want)
	}
}

func TestRenderCSV_RaggedRow(t *testing.T) {
	_, err := handlers.RenderCSV(handlers.Report{
		Name:    "bad",
		Columns: []string{"a", "b"},
		Rows:    [][]string{{"1"}},
	})
	if err == nil {
		t.Fatal("expected error for ragged row")
	}
}

func TestLogImplementations(t *testing.T) {
	ctx := context.Background()
	logger := slog.Default()

	if err := (handlers.LogMailer{Logger: logger}).Send(ctx, handlers.Email{To: "x"}); err != nil {
		t.Fatalf("LogMailer: %v", err)
	}
	ref1, err := (handlers.LogGateway{Logger: logger}).Charge(ctx, handlers.Payment{OrderID: "ORD-1"})
	if err != nil {
		t.Fatalf("LogGateway: %v", err)
	}
	ref2, _ := (handlers.LogGateway{Logger: logger}).Charge(ctx, handlers.Payment{OrderID: "ORD-1"})
	if ref1 != ref2 {
		t.Errorf("gateway references differ for the same order: %s vs %s", ref1, ref2)
	}
	if err := (handlers.LogSink{Logger: logger}).Write(ctx, "r.csv", []byte("a")); err != nil {
		t.Fatalf("LogSink: %v", err)
	}
}
