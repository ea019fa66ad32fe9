package narration

import (
	"testing"
)

func TestParse_UPI(t *testing.T) {
	p := NewParser(nil)

	tests := []struct {
		name     string
		input    string
		merchant string
		clean    string
		kind     Kind
	}{
		{
			name:     "app segment resolves over raw counterparty name",
			input:    "WDL TFR UPI/DR/UTR123/JohnDoe/SBI/john@ybl/PhonePe ref AT Branch",
			merchant: "PhonePe",
			clean:    "UPI Transfer to PhonePe",
			kind:     KindUPI,
		},
		{
			name:     "unknown counterparty falls back to title-cased name",
			input:    "WDL TFR UPI/DR/931523643407/SHAIK YA/SBIN/skyasmeen1/Paym",
			merchant: "Shaik Ya",
			clean:    "UPI Transfer to Shaik Ya",
			kind:     KindUPI,
		},
		{
			name:     "credit direction flips the sentence",
			input:    "DEP TFR UPI/CR/405512345678/RAVI KUMAR/HDFC/ravi.k@okhdfc/GPay",
			merchant: "Google Pay",
			clean:    "UPI Received from Google Pay",
			kind:     KindUPI,
		},
		{
			name:     "alias on the counterparty name itself",
			input:    "WDL TFR UPI/DR/405598765432/ZOMATOFO/ICIC/zomato@paytm",
			merchant: "Zomato",
			clean:    "UPI Transfer to Zomato",
			kind:     KindUPI,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := p.Parse(tc.input)
			if got.Kind != tc.kind {
				t.Errorf("kind = %s, want %s", got.Kind, tc.kind)
			}
			if got.Merchant != tc.merchant {
				t.Errorf("merchant = %q, want %q", got.Merchant, tc.merchant)
			}
			if got.CleanDescription != tc.clean {
				t.Errorf("clean = %q, want %q", got.CleanDescription, tc.clean)
			}
		})
	}
}

func TestParse_UPIMeta(t *testing.T) {
	p := NewParser(nil)

	got := p.Parse("WDL TFR UPI/DR/UTR123/JohnDoe/SBI/john@ybl/PhonePe ref AT Branch")
	if got.Meta["reference"] != "UTR123" {
		t.Errorf("reference = %q, want UTR123", got.Meta["reference"])
	}
	if got.Meta["bank"] != "SBI" {
		t.Errorf("bank = %q, want SBI", got.Meta["bank"])
	}
	if got.Meta["upi_id"] != "john@ybl" {
		t.Errorf("upi_id = %q, want john@ybl", got.Meta["upi_id"])
	}
	if got.Meta["app"] != "PhonePe" {
		t.Errorf("app = %q, want PhonePe", got.Meta["app"])
	}
}

func TestParse_POS(t *testing.T) {
	p := NewParser(nil)

	tests := []struct {
		name     string
		input    string
		merchant string
		clean    string
	}{
		{
			name:     "terminal prefix with star",
			input:    "POS ATM PURCH OTHPG 3155010693 17Pho*PHONEPE RECHARGE BANGALORE",
			merchant: "PhonePe",
			clean:    "Card purchase at PhonePe, Bangalore",
		},
		{
			name:     "underscore prefix and unknown merchant",
			input:    "POS PURCH SBIPG 4412098765 RAZP_CORNER BAKERY MUMBAI",
			merchant: "Corner Bakery",
			clean:    "Card purchase at Corner Bakery, Mumbai",
		},
		{
			name:     "bare digit prefix",
			input:    "POS ATM PURCH 5566778899 402881SWIGGY BANGALORE",
			merchant: "Swiggy",
			clean:    "Card purchase at Swiggy, Bangalore",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := p.Parse(tc.input)
			if got.Kind != KindPOS {
				t.Fatalf("kind = %s, want %s", got.Kind, KindPOS)
			}
			if got.Merchant != tc.merchant {
				t.Errorf("merchant = %q, want %q", got.Merchant, tc.merchant)
			}
			if got.CleanDescription != tc.clean {
				t.Errorf("clean = %q, want %q", got.CleanDescription, tc.clean)
			}
		})
	}
}

func TestParse_POSMeta(t *testing.T) {
	p := NewParser(nil)

	got := p.Parse("POS ATM PURCH OTHPG 3155010693 17Pho*PHONEPE RECHARGE BANGALORE")
	if got.Meta["reference"] != "3155010693" {
		t.Errorf("reference = %q, want 3155010693", got.Meta["reference"])
	}
	if got.Meta["gateway"] != "OTHPG" {
		t.Errorf("gateway = %q, want OTHPG", got.Meta["gateway"])
	}
	if got.Meta["location"] != "BANGALORE" {
		t.Errorf("location = %q, want BANGALORE", got.Meta["location"])
	}
}

func TestParse_ATM(t *testing.T) {
	p := NewParser(nil)

	got := p.Parse("ATM WDL ATM CASH 1957 SP OFFICE DARGAMITTA NELLORE")
	if got.Kind != KindATM {
		t.Fatalf("kind = %s, want %s", got.Kind, KindATM)
	}
	if got.Merchant != "ATM Withdrawal" {
		t.Errorf("merchant = %q, want ATM Withdrawal", got.Merchant)
	}
	// The machine id is two tokens here: digits plus a short site code.
	if got.Meta["machine_id"] != "1957 SP" {
		t.Errorf("machine_id = %q, want %q", got.Meta["machine_id"], "1957 SP")
	}
	if got.CleanDescription != "ATM withdrawal at OFFICE DARGAMITTA NELLORE" {
		t.Errorf("clean = %q", got.CleanDescription)
	}

	// A plain location word after the digits must not be swallowed into
	// the machine id.
	got = p.Parse("ATM WDL ATM CASH 445522 DELHI")
	if got.Meta["machine_id"] != "445522" {
		t.Errorf("machine_id = %q, want 445522", got.Meta["machine_id"])
	}
	if got.Meta["location"] != "DELHI" {
		t.Errorf("location = %q, want DELHI", got.Meta["location"])
	}
}

func TestParse_INB(t *testing.T) {
	p := NewParser(nil)

	tests := []struct {
		name     string
		input    string
		merchant string
		clean    string
	}{
		{
			name:     "truncated counterparty resolves through alias",
			input:    "WDL TFR INB Amazon Seller Services Pv AT 1234567",
			merchant: "Amazon",
			clean:    "Transfer to Amazon",
		},
		{
			name:     "gift label kept as the sentence",
			input:    "WDL TFR INB Gift to relatives / Friends",
			merchant: "Gift to relatives / Friends",
			clean:    "Gift to relatives / Friends",
		},
		{
			name:     "unknown counterparty passes through",
			input:    "WDL TFR INB Sharma Traders AT 99887",
			merchant: "Sharma Traders",
			clean:    "Transfer to Sharma Traders",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := p.Parse(tc.input)
			if got.Kind != KindINB {
				t.Fatalf("kind = %s, want %s", got.Kind, KindINB)
			}
			if got.Merchant != tc.merchant {
				t.Errorf("merchant = %q, want %q", got.Merchant, tc.merchant)
			}
			if got.CleanDescription != tc.clean {
				t.Errorf("clean = %q, want %q", got.CleanDescription, tc.clean)
			}
		})
	}
}

func TestParse_CashDeposit(t *testing.T) {
	p := NewParser(nil)

	got := p.Parse("CASH DEPOSIT SELF AT 04413 PBB NELLORE")
	if got.Kind != KindCashDeposit {
		t.Fatalf("kind = %s, want %s", got.Kind, KindCashDeposit)
	}
	if got.Merchant != "Cash Deposit" {
		t.Errorf("merchant = %q", got.Merchant)
	}
	if got.CleanDescription != "Cash deposit at 04413 PBB NELLORE" {
		t.Errorf("clean = %q", got.CleanDescription)
	}
	if got.Meta["branch"] != "04413 PBB NELLORE" {
		t.Errorf("branch = %q", got.Meta["branch"])
	}

	got = p.Parse("CEMTEX DEP 00000004413 0 40623")
	if got.Kind != KindCashDeposit {
		t.Fatalf("kind = %s, want %s", got.Kind, KindCashDeposit)
	}
	if got.Meta["reference"] != "00000004413" {
		t.Errorf("reference = %q, want 00000004413", got.Meta["reference"])
	}
	if got.CleanDescription != "Cash deposit at deposit machine" {
		t.Errorf("clean = %q", got.CleanDescription)
	}
}

func TestParse_Transfer(t *testing.T) {
	p := NewParser(nil)

	got := p.Parse("TO TRANSFER NEFT*SBIN0001234*N123456789*ACME SUPPLIES")
	if got.Kind != KindTransfer {
		t.Fatalf("kind = %s, want %s", got.Kind, KindTransfer)
	}
	if got.Merchant != "Acme Supplies" {
		t.Errorf("merchant = %q, want Acme Supplies", got.Merchant)
	}
	if got.CleanDescription != "Transfer to Acme Supplies" {
		t.Errorf("clean = %q", got.CleanDescription)
	}

	got = p.Parse("WDL TFR OF Mr RAJESH KUMAR")
	if got.Kind != KindTransfer {
		t.Fatalf("kind = %s, want %s", got.Kind, KindTransfer)
	}
	if got.Merchant != "Rajesh Kumar" {
		t.Errorf("merchant = %q, want Rajesh Kumar", got.Merchant)
	}

	// Statement filler after the name must not leak into the merchant.
	got = p.Parse("DEP TFR SBIY2260332207597607O6924 M Transfer to Family or OF Mr MEERA MOHIDDIN MO")
	if got.Kind != KindTransfer {
		t.Fatalf("kind = %s, want %s", got.Kind, KindTransfer)
	}
	if got.Merchant != "Meera Mohiddin" {
		t.Errorf("merchant = %q, want Meera Mohiddin", got.Merchant)
	}
	if got.CleanDescription != "Received from Meera Mohiddin" {
		t.Errorf("clean = %q", got.CleanDescription)
	}

	got = p.Parse("WDL TFR 0010604296427 OF Mr HASSAN MOHIDDIN AT 04413 PBB NELLORE")
	if got.Kind != KindTransfer {
		t.Fatalf("kind = %s, want %s", got.Kind, KindTransfer)
	}
	if got.Merchant != "Hassan Mohiddin" {
		t.Errorf("merchant = %q, want Hassan Mohiddin", got.Merchant)
	}
	if got.CleanDescription != "Transfer to Hassan Mohiddin" {
		t.Errorf("clean = %q", got.CleanDescription)
	}
	if got.Meta["location"] != "04413 PBB NELLORE" {
		t.Errorf("location = %q, want 04413 PBB NELLORE", got.Meta["location"])
	}

	got = p.Parse("DEP TFR NETFLIX COM SUBSCRIPTION")
	if got.Kind != KindTransfer {
		t.Fatalf("kind = %s, want %s", got.Kind, KindTransfer)
	}
	if got.Merchant != "Netflix" {
		t.Errorf("merchant = %q, want Netflix", got.Merchant)
	}
	if got.CleanDescription != "Received from Netflix" {
		t.Errorf("clean = %q", got.CleanDescription)
	}
}

func TestParse_Unrecognized(t *testing.T) {
	p := NewParser(nil)

	inputs := []string{
		"CHQ PAID 123456",
		"  BANK CHARGES GST  ",
		"",
		"TFR SOMETHING NOBODY KNOWS",
	}
	for _, input := range inputs {
		got := p.Parse(input)
		if got.Kind != KindUnrecognized {
			t.Errorf("Parse(%q) kind = %s, want %s", input, got.Kind, KindUnrecognized)
			continue
		}
		if got.Merchant != UnknownMerchant {
			t.Errorf("Parse(%q) merchant = %q, want %q", input, got.Merchant, UnknownMerchant)
		}
		// Verbatim passthrough, whitespace included.
		if got.CleanDescription != input {
			t.Errorf("Parse(%q) clean = %q, want verbatim input", input, got.CleanDescription)
		}
	}
}

func TestAliasTable_OrderAndBoundaries(t *testing.T) {
	table := DefaultAliasTable()

	// "Swiggy Instamart" precedes "Swiggy", so the more specific alias
	// wins even though both substrings are present.
	if got, ok := table.Match("SWIGGY INSTAMART ORDER"); !ok || got != "Swiggy Instamart" {
		t.Errorf("Match = %q, %v; want Swiggy Instamart", got, ok)
	}
	if got, ok := table.Match("SWIGGYUPI PAYMENT"); !ok || got != "Swiggy" {
		t.Errorf("collapsed match = %q, %v; want Swiggy", got, ok)
	}

	// Short aliases need word boundaries: "ola" inside another word is
	// not a hit, but standing alone it is.
	if got, ok := table.Match("CHOLAMANDALAM FINANCE"); ok {
		t.Errorf("expected no match inside longer word, got %q", got)
	}
	if got, ok := table.Match("OLA RIDE 12345"); !ok || got != "Ola" {
		t.Errorf("Match = %q, %v; want Ola", got, ok)
	}

	if _, ok := table.Match(""); ok {
		t.Error("empty input must not match")
	}
}

func TestAliasTable_ShortAliasSecondPass(t *testing.T) {
	table := AliasTable{
		{Canonical: "Vodafone", Tokens: []string{"vi"}},
	}
	// Two-letter aliases are skipped by the collapsed pass and only hit
	// as standalone words in the second pass.
	if got, ok := table.Match("VI RECHARGE 299"); !ok || got != "Vodafone" {
		t.Errorf("Match = %q, %v; want Vodafone", got, ok)
	}
	if got, ok := table.Match("SERVICE CHARGE"); ok {
		t.Errorf("expected no match inside longer words, got %q", got)
	}
}
