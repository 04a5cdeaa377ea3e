package enums

import "testing"

func TestOrderStatusTerminal(t *testing.T) {
	terminal := map[OrderStatus]bool{
		OrderStatusAwaitingApproval: false,
		OrderStatusAwaitingPayment:  false,
		OrderStatusCashPayment:      false,
		OrderStatusPaymentReceived:  false,
		OrderStatusCompleted:        true,
		OrderStatusCancelled:        true,
		OrderStatusExpired:          true,
	}
	for status, want := range terminal {
		if got := status.IsTerminal(); got != want {
			t.Fatalf("%s: expected terminal=%v got %v", status, want, got)
		}
	}
}

func TestParseRejectsUnknownValues(t *testing.T) {
	if _, err := ParseOrderStatus("shipped"); err == nil {
		t.Fatal("expected unknown order status to fail")
	}
	if _, err := ParsePaymentMethod("crypto"); err == nil {
		t.Fatal("expected unknown payment method to fail")
	}
	if method, err := ParsePaymentMethod("bank_transfer"); err != nil || method != PaymentMethodBankTransfer {
		t.Fatalf("expected bank_transfer, got %q (%v)", method, err)
	}
}

func TestPaymentRecordStatusSettled(t *testing.T) {
	if !PaymentRecordCompleted.IsSettled() || !PaymentRecordPaid.IsSettled() {
		t.Fatal("completed and paid records should count as settled")
	}
	if PaymentRecordPending.IsSettled() || PaymentRecordFailed.IsSettled() {
		t.Fatal("pending and failed records should not count as settled")
	}
}

func TestSettlesOnline(t *testing.T) {
	if PaymentMethodCash.SettlesOnline() {
		t.Fatal("cash is confirmed by the vendor")
	}
	if !PaymentMethodCard.SettlesOnline() || !PaymentMethodBankTransfer.SettlesOnline() {
		t.Fatal("card and bank transfer settle through the gateway")
	}
	if PaymentMethod("crypto").SettlesOnline() {
		t.Fatal("unknown methods never settle")
	}
}

func TestAllOrderStatusesIsACopy(t *testing.T) {
	all := AllOrderStatuses()
	all[0] = "mutated"
	if AllOrderStatuses()[0] != OrderStatusAwaitingApproval {
		t.Fatal("callers must not be able to mutate the status list")
	}
	if _, err := ParseUserRole("vendor"); err == nil {
		t.Fatal("vendor is a relationship, not a role")
	}
}
