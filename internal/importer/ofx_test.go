package importer

import (
	"context"
	"strings"
	"testing"

	"github.com/aclindsa/ofxgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const checkingOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20250215120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<BANKMSGSRSV1>
<STMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<STMTRS>
<CURDEF>DKK
<BANKACCTFROM>
<BANKID>9570
<ACCTID>0012345678
<ACCTTYPE>CHECKING
</BANKACCTFROM>
<BANKTRANLIST>
<DTSTART>20250101120000[0:GMT]
<DTEND>20250131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20250113120000[0:GMT]
<TRNAMT>-3126.38
<FITID>DK2025011301
<NAME>BS TOPDANMARK
</STMTTRN>
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20250114120000[0:GMT]
<TRNAMT>-89.5
<FITID>DK2025011401
<NAME>PURCHASE
<MEMO>MC/VISA DK K BYENS BROEDHUS A
</STMTTRN>
<STMTTRN>
<TRNTYPE>CREDIT
<DTPOSTED>20250131120000[0:GMT]
<TRNAMT>25000.00
<FITID>DK2025013101
<NAME>LOEN
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>21784.12
<DTASOF>20250131120000[0:GMT]
</LEDGERBAL>
</STMTRS>
</STMTTRNRS>
</BANKMSGSRSV1>
</OFX>`

const cardOFX = `OFXHEADER:100
DATA:OFXSGML
VERSION:102
SECURITY:NONE
ENCODING:USASCII
CHARSET:1252
COMPRESSION:NONE
OLDFILEUID:NONE
NEWFILEUID:NONE

<OFX>
<SIGNONMSGSRSV1>
<SONRS>
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<DTSERVER>20250215120000[0:GMT]
<LANGUAGE>ENG
</SONRS>
</SIGNONMSGSRSV1>
<CREDITCARDMSGSRSV1>
<CCSTMTTRNRS>
<TRNUID>1
<STATUS>
<CODE>0
<SEVERITY>INFO
</STATUS>
<CCSTMTRS>
<CURDEF>DKK
<CCACCTFROM>
<ACCTID>5555444433332222
</CCACCTFROM>
<BANKTRANLIST>
<DTSTART>20250101120000[0:GMT]
<DTEND>20250131120000[0:GMT]
<STMTTRN>
<TRNTYPE>DEBIT
<DTPOSTED>20250105120000[0:GMT]
<TRNAMT>-129.00
<FITID>CC01
<NAME>SPOTIFY*P2B3C4
</STMTTRN>
</BANKTRANLIST>
<LEDGERBAL>
<BALAMT>-129.00
<DTASOF>20250131120000[0:GMT]
</LEDGERBAL>
</CCSTMTRS>
</CCSTMTTRNRS>
</CREDITCARDMSGSRSV1>
</OFX>`

func TestOFXReader_Read(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		count   int
		wantErr bool
	}{
		{name: "bank statement", data: checkingOFX, count: 3},
		{name: "credit card statement", data: cardOFX, count: 1},
		{name: "leading blank lines", data: "\n\n  " + cardOFX, count: 1},
		{name: "not OFX", data: "Dato;Tekst;Beløb", wantErr: true},
		{name: "empty", data: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := NewOFXReader().Read(context.Background(), strings.NewReader(tt.data), "test.ofx")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, records, tt.count)
		})
	}
}

func TestOFXReader_RecordFields(t *testing.T) {
	records, err := NewOFXReader().Read(context.Background(), strings.NewReader(checkingOFX), "jan.ofx")
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "-3126.38", records[0].RawAmount)
	assert.Equal(t, "2025-01-13", records[0].RawDate)
	assert.Equal(t, "BS TOPDANMARK", records[0].RawDescriptor)
	assert.Equal(t, "DK2025011301", records[0].Line)
	assert.Equal(t, "DK2025011301", records[0].ID)
	assert.Equal(t, "jan.ofx", records[0].Source)

	assert.Equal(t, "-89.50", records[1].RawAmount)
	assert.Equal(t, "MC/VISA DK K BYENS BROEDHUS A", records[1].RawDescriptor, "generic NAME falls back to MEMO")

	assert.Equal(t, "25000.00", records[2].RawAmount)
}

func TestDescriptor(t *testing.T) {
	tests := []struct {
		name string
		tx   ofxgo.Transaction
		want string
	}{
		{name: "payee wins", tx: ofxgo.Transaction{Name: "DEBIT", Payee: &ofxgo.Payee{Name: "Netto"}}, want: "Netto"},
		{name: "name trimmed", tx: ofxgo.Transaction{Name: "  NETFLIX.COM  "}, want: "NETFLIX.COM"},
		{name: "generic name uses memo", tx: ofxgo.Transaction{Name: "Payment", Memo: "MOBILEPAY ANNA"}, want: "MOBILEPAY ANNA"},
		{name: "generic name without memo", tx: ofxgo.Transaction{Name: "DEBIT"}, want: "DEBIT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, descriptor(tt.tx))
		})
	}
}
