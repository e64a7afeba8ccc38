package rates

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aristath/yieldfund/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	catalog, err := Default()
	require.NoError(t, err)
	assert.Equal(t, 5, catalog.Len())

	mining, ok := catalog.Product("mining-1")
	require.True(t, ok)
	assert.Equal(t, KindFixedPerUnitPerDay, mining.Rule.Kind)
	assert.True(t, mining.Withdrawal.Enabled)
	assert.True(t, mining.Withdrawal.MinAmount.Equal(dec("1")))
	assert.Equal(t, "FIL", mining.Unit)

	lockup, ok := catalog.Product("funding-3")
	require.True(t, ok)
	assert.True(t, lockup.Rule.Accrues())
	assert.False(t, lockup.Withdrawal.Enabled)

	closed, ok := catalog.Rule("funding-4")
	require.True(t, ok)
	assert.Equal(t, KindDisabled, closed.Kind)

	_, ok = catalog.Product("funding-99")
	assert.False(t, ok)
}

func TestParse_OverridesAndDefaults(t *testing.T) {
	data := []byte(`
[defaults]
percent_min_withdrawal = "100000"

[[products]]
id = "funding-7"
unit = "KRW"
kind = "percent_per_month"
rate = "0.02"

[[products]]
id = "mining-2"
unit = "FIL"
kind = "fixed_per_unit_per_day"
amount = "0.5"
  [products.withdrawal]
  min_amount = "10"
`)
	catalog, err := Parse(data)
	require.NoError(t, err)

	funding, _ := catalog.Product("funding-7")
	assert.True(t, funding.Withdrawal.MinAmount.Equal(dec("100000")))

	mining, _ := catalog.Product("mining-2")
	assert.True(t, mining.Withdrawal.Enabled)
	assert.True(t, mining.Withdrawal.MinAmount.Equal(dec("10")))
	assert.Equal(t, []domain.ProductID{"funding-7", "mining-2"}, []domain.ProductID{catalog.Products()[0].ID, catalog.Products()[1].ID})
}

func TestParse_Errors(t *testing.T) {
	tests := map[string]string{
		"bad id":        "[[products]]\nid = \"Funding 1\"\nkind = \"disabled\"\n",
		"unknown kind":  "[[products]]\nid = \"funding-1\"\nkind = \"weekly\"\n",
		"missing rate":  "[[products]]\nid = \"funding-1\"\nkind = \"percent_per_month\"\n",
		"negative rate": "[[products]]\nid = \"funding-1\"\nkind = \"percent_per_month\"\nrate = \"-1\"\n",
		"duplicate":     "[[products]]\nid = \"funding-1\"\nkind = \"disabled\"\n[[products]]\nid = \"funding-1\"\nkind = \"disabled\"\n",
		"bad toml":      "[[products]\n",
	}
	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(data))
			assert.Error(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "products.toml")
	require.NoError(t, os.WriteFile(path, []byte("[[products]]\nid = \"funding-1\"\nkind = \"disabled\"\n"), 0o644))

	catalog, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, catalog.Len())

	catalog, err = LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, 5, catalog.Len())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}
