package models

import "time"

type State string

const (
	StateIdle                State = "idle"
	StateValidating          State = "validating"
	StateSubmitting          State = "submitting"
	StatePendingConfirmation State = "pending_confirmation"
	StateConfirmed           State = "confirmed"
	StateFailed              State = "failed"
)

func (s State) Terminal() bool {
	return s == StateConfirmed || s == StateFailed
}

type Kind string

const (
	KindApproveKYC      Kind = "approve_kyc"
	KindRevokeKYC       Kind = "revoke_kyc"
	KindListForSale     Kind = "list_for_sale"
	KindUnlist          Kind = "unlist"
	KindBuy             Kind = "buy"
	KindEscrow          Kind = "escrow"
	KindMintDeed        Kind = "mint_deed"
	KindRequestProperty Kind = "request_property"
	KindVerifyProperty  Kind = "verify_property"
	KindRejectProperty  Kind = "reject_property"
	KindWithdrawRequest Kind = "withdraw_request"
)

var kindTitles = map[Kind]string{
	KindApproveKYC:      "Approve KYC",
	KindRevokeKYC:       "Revoke KYC",
	KindListForSale:     "List deed for sale",
	KindUnlist:          "Remove deed from sale",
	KindBuy:             "Buy deed",
	KindEscrow:          "Approve & execute escrow",
	KindMintDeed:        "Mint deed",
	KindRequestProperty: "Request property registration",
	KindVerifyProperty:  "Verify property request",
	KindRejectProperty:  "Reject property request",
	KindWithdrawRequest: "Withdraw property request",
}

func (k Kind) Title() string {
	if t, ok := kindTitles[k]; ok {
		return t
	}
	return string(k)
}

// Action is one run of a contract write through the state machine.
type Action struct {
	ID     string `json:"id"`
	Kind   Kind   `json:"kind"`
	Key    string `json:"key"`
	State  State  `json:"state"`
	Status string `json:"status"`

	// TxHashes lists every submitted transaction in order.
	TxHashes []string `json:"tx_hashes,omitempty"`

	ErrorCode string            `json:"error_code,omitempty"`
	Error     string            `json:"error,omitempty"`
	Params    map[string]string `json:"params,omitempty"`
	Result    map[string]string `json:"result,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TxHash is the most recent transaction hash.
func (a Action) TxHash() string {
	if len(a.TxHashes) == 0 {
		return ""
	}
	return a.TxHashes[len(a.TxHashes)-1]
}

func (a Action) Pending() bool {
	return !a.State.Terminal()
}

func (a Action) Clone() Action {
	out := a
	out.TxHashes = append([]string(nil), a.TxHashes...)
	out.Params = cloneMap(a.Params)
	out.Result = cloneMap(a.Result)
	return out
}

func cloneMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// MetadataPreview is what the mint page shows for a CID before minting.
type MetadataPreview struct {
	CID    string         `json:"cid"`
	RawURL string         `json:"raw_url"`
	// Pretty is the indented document; empty when Error is set.
	Pretty string         `json:"pretty,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
	Error  string         `json:"error,omitempty"`
}
