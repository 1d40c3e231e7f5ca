package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	apperrors "propchain/internal/common/errors"
	"propchain/internal/common/validation"
	"propchain/internal/features/action/models"
	propmodels "propchain/internal/features/property/models"
	txmodels "propchain/internal/features/transaction/models"
	"propchain/internal/platform/ethereum"
)

const (
	msgNoEscrow    = "No escrow found for that deed"
	msgMissingRole = "You do not hold the GOVERNMENT_ROLE"
	msgPreviewFail = "Not JSON or fetch failed. View raw file below."
)

func parseAddress(field, raw string) (common.Address, error) {
	if err := validation.ValidateAddress(raw); err != nil {
		return common.Address{}, apperrors.NewValidationError(field, err.Error())
	}
	return common.HexToAddress(raw), nil
}

func parseID(field, raw string) (*big.Int, error) {
	id, err := validation.ParseDeedID(raw)
	if err != nil {
		return nil, apperrors.NewValidationError(field, err.Error())
	}
	return id, nil
}

// ApproveKYC marks address as KYC-approved.
func (s *Service) ApproveKYC(ctx context.Context, address string) (models.Action, error) {
	return s.kyc(ctx, models.KindApproveKYC, "approveKYC", address, "Submitting KYC approval...", "Approved KYC for %s. Tx: %s")
}

func (s *Service) RevokeKYC(ctx context.Context, address string) (models.Action, error) {
	return s.kyc(ctx, models.KindRevokeKYC, "revokeKYC", address, "Revoking KYC...", "Revoked KYC for %s. Tx: %s")
}

func (s *Service) kyc(ctx context.Context, kind models.Kind, method, address, submitting, done string) (models.Action, error) {
	signer, err := s.signer()
	if err != nil {
		return models.Action{}, err
	}
	target, err := parseAddress("address", address)
	if err != nil {
		return models.Action{}, err
	}

	return s.execute(ctx, signer, plan{
		kind:       kind,
		key:        "kyc:" + target.Hex(),
		params:     map[string]string{"address": target.Hex()},
		submitting: submitting,
		calls: []call{{
			contract: s.contracts.KYCRegistry,
			method:   method,
			args:     []interface{}{target},
			pending:  "Waiting for confirmation...",
		}},
		confirmed: func(hash string) string { return fmt.Sprintf(done, target.Hex(), hash) },
	})
}

// ListForSale lists a deed at a price given in ETH.
func (s *Service) ListForSale(ctx context.Context, deedID, priceEth string) (models.Action, error) {
	signer, err := s.signer()
	if err != nil {
		return models.Action{}, err
	}
	id, err := parseID("deed id", deedID)
	if err != nil {
		return models.Action{}, err
	}
	price, err := validation.ParseEther(priceEth)
	if err != nil {
		return models.Action{}, apperrors.NewValidationError("price", err.Error())
	}
	eth := validation.FormatEther(price, 4)

	return s.execute(ctx, signer, plan{
		kind:       models.KindListForSale,
		key:        "market:" + id.String(),
		params:     map[string]string{"deed_id": id.String(), "price_eth": eth, "price_wei": price.String()},
		submitting: "Listing for sale...",
		calls: []call{{
			contract: s.contracts.Marketplace,
			method:   "listForSale",
			args:     []interface{}{id, price},
			pending:  "Waiting for confirmation...",
		}},
		confirmed: func(hash string) string {
			return fmt.Sprintf("Deed %s listed at %s ETH. Tx: %s", id, eth, hash)
		},
	})
}

func (s *Service) Unlist(ctx context.Context, deedID string) (models.Action, error) {
	signer, err := s.signer()
	if err != nil {
		return models.Action{}, err
	}
	id, err := parseID("deed id", deedID)
	if err != nil {
		return models.Action{}, err
	}

	return s.execute(ctx, signer, plan{
		kind:       models.KindUnlist,
		key:        "market:" + id.String(),
		params:     map[string]string{"deed_id": id.String()},
		submitting: "Removing from sale...",
		calls: []call{{
			contract: s.contracts.Marketplace,
			method:   "unlist",
			args:     []interface{}{id},
			pending:  "Waiting for confirmation...",
		}},
		confirmed: func(hash string) string {
			return fmt.Sprintf("Deed %s removed from sale. Tx: %s", id, hash)
		},
	})
}

// Buy pays exactly priceWei for a listed deed and records the sale in the ledger.
func (s *Service) Buy(ctx context.Context, deedID, priceWei string) (models.Action, error) {
	signer, err := s.signer()
	if err != nil {
		return models.Action{}, err
	}
	id, err := parseID("deed id", deedID)
	if err != nil {
		return models.Action{}, err
	}
	value, err := validation.ParseWei(priceWei)
	if err != nil {
		return models.Action{}, apperrors.NewValidationError("price", err.Error())
	}

	// Seller is informational; an unreadable owner leaves it blank.
	var seller string
	if out, err := s.chain.Call(ctx, s.contracts.TitleRegistry, "ownerOf", id); err == nil && len(out) > 0 {
		if owner, ok := out[0].(common.Address); ok {
			seller = owner.Hex()
		}
	}

	var ledgerID string
	return s.execute(ctx, signer, plan{
		kind:       models.KindBuy,
		key:        "market:" + id.String(),
		params:     map[string]string{"deed_id": id.String(), "price_wei": value.String()},
		submitting: "Purchasing deed...",
		calls: []call{{
			contract: s.contracts.Marketplace,
			method:   "buy",
			args:     []interface{}{id},
			value:    value,
			pending:  "Waiting for confirmation...",
		}},
		submitted: func(a models.Action) map[string]string {
			tx := s.ledger.Append(txmodels.Transaction{
				PropertyID:  id.String(),
				From:        signer.From.Hex(),
				To:          seller,
				Amount:      new(big.Int).Set(value),
				Currency:    txmodels.CurrencyETH,
				ChainTxHash: a.TxHash(),
			})
			ledgerID = tx.ID
			return map[string]string{"transaction_id": tx.ID}
		},
		finished: func(state models.State, hash string) {
			if ledgerID == "" {
				return
			}
			status := txmodels.StatusCompleted
			if state == models.StateFailed {
				status = txmodels.StatusFailed
			}
			if _, err := s.ledger.Settle(ledgerID, status, hash); err != nil {
				s.log.Warn().Err(err).Str("transaction_id", ledgerID).Msg("failed to settle purchase")
			}
		},
		confirmed: func(hash string) string {
			return fmt.Sprintf("Purchase completed. Tx: %s", hash)
		},
	})
}

// ApproveAndExecuteEscrow approves and then executes transaction 0 on the
// escrow contract bound to deedID.
func (s *Service) ApproveAndExecuteEscrow(ctx context.Context, deedID string) (models.Action, error) {
	signer, err := s.signer()
	if err != nil {
		return models.Action{}, err
	}
	id, err := parseID("deed id", deedID)
	if err != nil {
		return models.Action{}, err
	}

	return s.execute(ctx, signer, plan{
		kind:       models.KindEscrow,
		key:        "escrow:" + id.String(),
		params:     map[string]string{"deed_id": id.String()},
		preparing:  "Fetching escrow address...",
		submitting: "Approving escrow Tx...",
		prepare: func(ctx context.Context) ([]call, map[string]string, error) {
			out, err := s.read(ctx, s.contracts.Marketplace, "escrowForDeed", id)
			if err != nil {
				return nil, nil, err
			}
			addr, ok := out[0].(common.Address)
			if !ok || addr == (common.Address{}) {
				return nil, nil, apperrors.New(apperrors.ErrCodeNoEscrow, msgNoEscrow).WithDetail("deed_id", id.String())
			}
			escrow := s.contracts.Escrow(addr)
			txID := big.NewInt(0)
			return []call{
				{contract: escrow, method: "approveTx", args: []interface{}{txID}, pending: "Approving escrow Tx..."},
				{contract: escrow, method: "executeTx", args: []interface{}{txID}, pending: "Approval submitted. Now attempt to execute..."},
			}, map[string]string{"escrow": addr.Hex()}, nil
		},
		confirmed: func(string) string { return "Escrow executed; deed should have transferred!" },
	})
}

// CanMint reports whether the connected account holds the government role.
func (s *Service) CanMint(ctx context.Context) (bool, error) {
	addr, ok := s.wallet.Address()
	if !ok {
		return false, apperrors.NewNotConnectedError()
	}
	out, err := s.read(ctx, s.contracts.TitleRegistry, "hasRole", [32]byte(ethereum.GovernmentRole), addr)
	if err != nil {
		return false, err
	}
	has, _ := out[0].(bool)
	return has, nil
}

// MintDeed mints a deed to target. cid is shown on the action page only.
func (s *Service) MintDeed(ctx context.Context, target, cid string) (models.Action, error) {
	signer, err := s.signer()
	if err != nil {
		return models.Action{}, err
	}
	to, err := parseAddress("recipient", target)
	if err != nil {
		return models.Action{}, err
	}
	if cid != "" {
		if err := validation.ValidateCID(cid); err != nil {
			return models.Action{}, apperrors.NewValidationError("cid", err.Error())
		}
	}

	allowed, err := s.CanMint(ctx)
	if err != nil {
		return models.Action{}, err
	}
	if !allowed {
		return models.Action{}, apperrors.NewForbiddenError(msgMissingRole)
	}

	return s.execute(ctx, signer, plan{
		kind:       models.KindMintDeed,
		key:        "mint:" + to.Hex(),
		params:     map[string]string{"recipient": to.Hex(), "cid": cid},
		submitting: "Minting deed...",
		calls: []call{{
			contract: s.contracts.TitleRegistry,
			method:   "mintDeed",
			args:     []interface{}{to},
			pending:  "Waiting for confirmation...",
		}},
		confirmed: func(hash string) string {
			return fmt.Sprintf("Deed minted (check ownerOf). TxHash: %s", hash)
		},
	})
}

// PreviewMetadata never fails: unreadable content yields a preview with
// Error set and the raw gateway link.
func (s *Service) PreviewMetadata(ctx context.Context, cid string) models.MetadataPreview {
	preview := models.MetadataPreview{CID: cid, RawURL: s.docs.RawURL(cid)}
	if err := validation.ValidateCID(cid); err != nil {
		preview.Error = msgPreviewFail
		return preview
	}

	raw, err := s.docs.Fetch(ctx, cid)
	if err != nil {
		s.log.Debug().Err(err).Str("cid", cid).Msg("metadata preview fetch failed")
		preview.Error = msgPreviewFail
		return preview
	}

	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		preview.Error = msgPreviewFail
		return preview
	}
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, raw, "", "  "); err != nil {
		preview.Error = msgPreviewFail
		return preview
	}
	preview.Fields = fields
	preview.Pretty = pretty.String()
	return preview
}

func validateMetadata(m propmodels.Metadata) error {
	if err := validation.ValidateTitle(m.Title); err != nil {
		return apperrors.NewValidationError("title", err.Error())
	}
	if err := validation.ValidateDescription(m.Description); err != nil {
		return apperrors.NewValidationError("description", err.Error())
	}
	if err := validation.ValidateLocation(m.Location); err != nil {
		return apperrors.NewValidationError("location", err.Error())
	}
	if m.Price != nil {
		if err := validation.ValidateNonNegativeInt(*m.Price, "price"); err != nil {
			return apperrors.NewValidationError("price", err.Error())
		}
	}
	for field, v := range map[string]int64{"area": m.Area, "bedrooms": int64(m.Bedrooms), "year built": int64(m.YearBuilt)} {
		if err := validation.ValidateNonNegativeInt(v, field); err != nil {
			return apperrors.NewValidationError(field, err.Error())
		}
	}
	if m.Bathrooms < 0 {
		return apperrors.NewValidationError("bathrooms", "bathrooms cannot be negative")
	}
	return nil
}

// RequestProperty publishes the metadata document and files a registration
// request for it, paying the configured fee.
func (s *Service) RequestProperty(ctx context.Context, meta propmodels.Metadata) (models.Action, error) {
	signer, err := s.signer()
	if err != nil {
		return models.Action{}, err
	}
	if err := validateMetadata(meta); err != nil {
		return models.Action{}, err
	}
	doc, err := json.Marshal(meta)
	if err != nil {
		return models.Action{}, apperrors.Wrap(err, apperrors.ErrCodeInternal, "Failed to encode metadata")
	}

	var cid string
	return s.execute(ctx, signer, plan{
		kind:       models.KindRequestProperty,
		key:        "request:" + signer.From.Hex(),
		params:     map[string]string{"title": meta.Title},
		preparing:  "Uploading metadata...",
		submitting: "Submitting property request...",
		prepare: func(ctx context.Context) ([]call, map[string]string, error) {
			published, err := s.docs.Publish(ctx, doc)
			if err != nil {
				return nil, nil, apperrors.Wrap(err, apperrors.ErrCodeProvider, "Failed to publish metadata")
			}
			cid = published
			return []call{{
				contract: s.contracts.PropertyRegistry,
				method:   "requestProperty",
				args:     []interface{}{published},
				value:    s.opts.RequestFee,
				pending:  "Waiting for confirmation...",
			}}, map[string]string{"cid": published, "raw_url": s.docs.RawURL(published)}, nil
		},
		confirmed: func(hash string) string {
			return fmt.Sprintf("Property request submitted for %s. Tx: %s", cid, hash)
		},
	})
}

func (s *Service) VerifyProperty(ctx context.Context, requestID string) (models.Action, error) {
	return s.review(ctx, models.KindVerifyProperty, "verifyProperty", requestID, "Verifying request...", "Request %s verified. Tx: %s")
}

func (s *Service) RejectProperty(ctx context.Context, requestID string) (models.Action, error) {
	return s.review(ctx, models.KindRejectProperty, "rejectProperty", requestID, "Rejecting request...", "Request %s rejected. Tx: %s")
}

func (s *Service) WithdrawRequest(ctx context.Context, requestID string) (models.Action, error) {
	return s.review(ctx, models.KindWithdrawRequest, "withdrawRequest", requestID, "Withdrawing request...", "Request %s withdrawn. Tx: %s")
}

func (s *Service) review(ctx context.Context, kind models.Kind, method, requestID, submitting, done string) (models.Action, error) {
	signer, err := s.signer()
	if err != nil {
		return models.Action{}, err
	}
	id, err := parseID("request id", requestID)
	if err != nil {
		return models.Action{}, err
	}

	return s.execute(ctx, signer, plan{
		kind:       kind,
		key:        "request-review:" + id.String(),
		params:     map[string]string{"request_id": id.String()},
		submitting: submitting,
		calls: []call{{
			contract: s.contracts.PropertyRegistry,
			method:   method,
			args:     []interface{}{id},
			pending:  "Waiting for confirmation...",
		}},
		confirmed: func(hash string) string { return fmt.Sprintf(done, id, hash) },
	})
}
