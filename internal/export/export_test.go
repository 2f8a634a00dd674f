package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"gestionale/pkg/money"
)

var auditColumns = []string{"id", "createdAt", "user", "action", "entity", "entityId", "metadata"}

func TestCSVEmptyTableWritesHeaderOnly(t *testing.T) {
	out, err := CSV(Table{Columns: auditColumns})
	require.NoError(t, err)
	assert.Equal(t, "id,createdAt,user,action,entity,entityId,metadata\n", string(out))
}

func TestCSVQuotesAndFormats(t *testing.T) {
	at := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	out, err := CSV(Table{
		Columns: []string{"name", "amount", "at", "note"},
		Rows: []map[string]any{
			{"name": `ACME, "Srl"`, "amount": money.Cents(12050), "at": at},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "name,amount,at,note\n\"ACME, \"\"Srl\"\"\",120.50,2025-03-01T10:00:00Z,\n", string(out))
}

func TestXLSXEmptyTable(t *testing.T) {
	out, err := XLSX(Table{Columns: auditColumns}, "AUDIT")
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"AUDIT"}, f.GetSheetList())
	rows, err := f.GetRows("AUDIT")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, auditColumns, rows[0])
}

func TestXLSXWritesRows(t *testing.T) {
	out, err := XLSX(Table{
		Columns: []string{"name", "monthly"},
		Rows: []map[string]any{
			{"name": "CRM", "monthly": money.Cents(4999)},
			{"name": "ERP", "monthly": money.Cents(10000)},
		},
	}, "PRODUCTS")
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("PRODUCTS")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"CRM", "49.99"}, rows[1])
	assert.Equal(t, []string{"ERP", "100"}, rows[2])
}

func TestPDFEmptyTableIsValidDocument(t *testing.T) {
	out, err := PDF(Table{Columns: auditColumns}, "AUDIT LOG")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestPDFWithRows(t *testing.T) {
	rows := make([]map[string]any, 250)
	for i := range rows {
		rows[i] = map[string]any{"name": "Cliente è più"}
	}
	out, err := PDF(Table{Columns: []string{"name"}, Rows: rows}, "CUSTOMERS")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))
}

func TestParseFormat(t *testing.T) {
	f, ok := ParseFormat("")
	assert.True(t, ok)
	assert.Equal(t, FormatCSV, f)

	f, ok = ParseFormat("XLSX")
	assert.True(t, ok)
	assert.Equal(t, "audit.xlsx", f.Filename("audit"))

	_, ok = ParseFormat("docx")
	assert.False(t, ok)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, "abc", clamp("abcdef", 3))
	assert.Equal(t, "ab", clamp("ab", 3))
}
