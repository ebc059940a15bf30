package reconciliation_test

import (
	"context"
	"errors"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/storerecon/reconciler/internal/domain"
	"github.com/storerecon/reconciler/internal/reconciliation"
	mock_reconciliation "github.com/storerecon/reconciler/internal/reconciliation/mocks"
)

func sampleSnapshot() *domain.Snapshot {
	net := func(s string) domain.Amounts {
		var a domain.Amounts
		a[domain.NetAmount] = domain.Money(decimal.RequireFromString(s))
		return a
	}
	return &domain.Snapshot{
		POS: []domain.POSRecord{
			{OrderID: "O1", OrderDate: "2024-03-02", Amounts: net("100")},
			{OrderID: "O2", OrderDate: "2024-03-02", Amounts: net("40")},
			{OrderID: "O3", OrderDate: "2024-03-03", Amounts: net("60")},
		},
		Aggregator: []domain.AggregatorRecord{
			{SettlementID: "S1", OrderID: "O1", Aggregator: "swiggy", OrderDate: "2024-03-02", Type: domain.TransactionSale, Amounts: net("100")},
		},
		Rejected: []domain.RejectedRow{
			{Table: "pos_transactions", Key: "O9", Reason: "net_amount: invalid"},
		},
	}
}

func TestService_Run(t *testing.T) {
	scope, err := domain.NewScope("2024-03-01", "2024-03-31", []string{"S1"})
	require.NoError(t, err)

	tests := []struct {
		name      string
		chunkSize int
		setup     func(src *mock_reconciliation.MockSourceReader, w *mock_reconciliation.MockChunkWriter, p *mock_reconciliation.MockResultPruner)
		wantErr   string
		check     func(t *testing.T, res *reconciliation.RunResult, hook *test.Hook)
	}{
		{
			name:      "persists every result set in chunks",
			chunkSize: 1,
			setup: func(src *mock_reconciliation.MockSourceReader, w *mock_reconciliation.MockChunkWriter, p *mock_reconciliation.MockResultPruner) {
				src.EXPECT().Snapshot(gomock.Any(), scope).Return(sampleSnapshot(), nil)
				w.EXPECT().UpsertChunk(gomock.Any(), "pos_vs_aggregator", gomock.Len(1), "created_at").Return(1, nil)
				w.EXPECT().UpsertChunk(gomock.Any(), "aggregator_vs_pos", gomock.Len(1), "created_at").Return(1, nil)
				w.EXPECT().UpsertChunk(gomock.Any(), "orders_missing_in_aggregator", gomock.Len(1), "created_at").Return(1, nil).Times(2)
				for _, v := range domain.Variants() {
					p.EXPECT().Prune(gomock.Any(), v, scope, gomock.Any()).Return(0, nil)
				}
			},
			check: func(t *testing.T, res *reconciliation.RunResult, hook *test.Hook) {
				assert.Equal(t, 1, res.Counts["pos_vs_aggregator"])
				assert.Equal(t, 2, res.Counts["orders_missing_in_aggregator"])
				assert.Equal(t, 0, res.Counts["orders_missing_in_pos"])
				assert.Equal(t, 1, res.Rejected)
				assert.Equal(t, []string{"S1"}, res.StoreCodes)

				var rejectedLogged bool
				for _, e := range hook.AllEntries() {
					if e.Level == logrus.WarnLevel && e.Data["order_id"] == "O9" {
						rejectedLogged = true
						assert.Equal(t, "2024-03-01", e.Data["start_date"])
					}
				}
				assert.True(t, rejectedLogged)
			},
		},
		{
			name:      "prunes rows no longer produced",
			chunkSize: 100,
			setup: func(src *mock_reconciliation.MockSourceReader, w *mock_reconciliation.MockChunkWriter, p *mock_reconciliation.MockResultPruner) {
				src.EXPECT().Snapshot(gomock.Any(), scope).Return(sampleSnapshot(), nil)
				w.EXPECT().UpsertChunk(gomock.Any(), gomock.Any(), gomock.Any(), "created_at").Return(1, nil).Times(3)
				p.EXPECT().Prune(gomock.Any(), domain.VariantMissingInPOS, scope, []string{}).Return(2, nil)
				p.EXPECT().Prune(gomock.Any(), gomock.Not(domain.VariantMissingInPOS), scope, gomock.Any()).Return(0, nil).Times(4)
			},
			check: func(t *testing.T, res *reconciliation.RunResult, _ *test.Hook) {
				assert.Equal(t, 2, res.Pruned)
			},
		},
		{
			name: "source error",
			setup: func(src *mock_reconciliation.MockSourceReader, _ *mock_reconciliation.MockChunkWriter, _ *mock_reconciliation.MockResultPruner) {
				src.EXPECT().Snapshot(gomock.Any(), scope).Return(nil, errors.New("database is locked"))
			},
			wantErr: "load sources: database is locked",
		},
		{
			name: "writer error stops the run",
			setup: func(src *mock_reconciliation.MockSourceReader, w *mock_reconciliation.MockChunkWriter, _ *mock_reconciliation.MockResultPruner) {
				src.EXPECT().Snapshot(gomock.Any(), scope).Return(sampleSnapshot(), nil)
				w.EXPECT().UpsertChunk(gomock.Any(), "pos_vs_aggregator", gomock.Any(), "created_at").
					Return(0, errors.New("disk I/O error"))
			},
			wantErr: "persist pos_vs_aggregator",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			defer ctrl.Finish()

			src := mock_reconciliation.NewMockSourceReader(ctrl)
			w := mock_reconciliation.NewMockChunkWriter(ctrl)
			p := mock_reconciliation.NewMockResultPruner(ctrl)
			tt.setup(src, w, p)

			logger, hook := test.NewNullLogger()
			engine := reconciliation.NewEngine(reconciliation.Options{}, logger)
			svc := reconciliation.NewService(src, w, p, engine, tt.chunkSize, logger)

			res, err := svc.Run(context.Background(), scope)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			tt.check(t, res, hook)
		})
	}
}
