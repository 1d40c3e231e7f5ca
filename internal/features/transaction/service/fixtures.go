package service

import (
	"math/big"
	"time"

	"propchain/internal/features/transaction/models"
)

// SeedFixtures appends the demo sales shown in fixture mode.
func SeedFixtures(l *Ledger, now time.Time) {
	day := 24 * time.Hour
	fixtures := []models.Transaction{
		{
			ID:          "tx-2",
			PropertyID:  "prop-1",
			From:        "0x5aeda56215b167893e80b4fe645ba6d5bab767de",
			To:          "0x742d35Cc6634C0532925a3b844Bc454e4438f44e",
			Amount:      big.NewInt(425000),
			OccurredAt:  now.Add(-30 * day),
			Status:      models.StatusCompleted,
			ChainTxHash: "0x7fa89bbbe19e5033cadd0ffe662a64c0155181b9eef6ee4fd893b629d9432e7a",
		},
		{
			ID:          "tx-1",
			PropertyID:  "prop-3",
			From:        "0x742d35Cc6634C0532925a3b844Bc454e4438f44e",
			To:          "0x8ba1f109551bD432803012645Ac136ddd64DBA72",
			Amount:      big.NewInt(875000),
			OccurredAt:  now.Add(-7 * day),
			Status:      models.StatusCompleted,
			ChainTxHash: "0x8c3f27bf5ded69a68e8fc926831f8cf8ee9e24a32b17ff1c919e4d34dfd3c615",
		},
		{
			ID:          "tx-3",
			PropertyID:  "prop-5",
			From:        "0x742d35Cc6634C0532925a3b844Bc454e4438f44e",
			To:          "0x0000000000000000000000000000000000000000",
			Amount:      big.NewInt(950000),
			OccurredAt:  now.Add(-2 * day),
			Status:      models.StatusPending,
			ChainTxHash: "0x5a2ea5135f911c1e8cc99543d19360d30f9af1d3e63f507fb28c5033a5fcdfc2",
		},
	}
	for _, tx := range fixtures {
		tx.Currency = models.CurrencyUSD
		l.Append(tx)
	}
}
