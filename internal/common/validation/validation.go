package validation

import (
	"fmt"
	"math/big"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
)

const (
	// Максимальные длины для различных полей
	MaxTitleLength       = 200
	MaxDescriptionLength = 2000
	MaxLocationLength    = 200

	// Количество знаков после запятой у ETH
	EtherDecimals = 18
)

var validate = validator.New()

// CIDv0 (Qm + base58) или CIDv1 в base32
var cidRegex = regexp.MustCompile(`^(Qm[1-9A-HJ-NP-Za-km-z]{44}|b[a-z2-7]{20,})$`)

// ValidateAddress проверяет адрес кошелька или контракта
func ValidateAddress(address string) error {
	address = strings.TrimSpace(address)
	if address == "" {
		return fmt.Errorf("address cannot be empty")
	}
	if err := validate.Var(address, "eth_addr"); err != nil {
		return fmt.Errorf("%q is not a valid address", address)
	}
	return nil
}

// ParseDeedID разбирает идентификатор токена или заявки (uint256)
func ParseDeedID(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("id cannot be empty")
	}
	if err := validate.Var(raw, "numeric"); err != nil {
		return nil, fmt.Errorf("id must be a number")
	}
	id, ok := new(big.Int).SetString(raw, 10)
	if !ok || id.Sign() < 0 {
		return nil, fmt.Errorf("id must be a non-negative integer")
	}
	return id, nil
}

// ParseEther переводит цену в ETH ("0.5") в wei
func ParseEther(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("price cannot be empty")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("price must be a decimal number")
	}
	if !d.IsPositive() {
		return nil, fmt.Errorf("price must be positive")
	}
	wei := d.Shift(EtherDecimals)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, fmt.Errorf("price has more than %d decimal places", EtherDecimals)
	}
	return wei.BigInt(), nil
}

// ParseWei разбирает точную сумму в wei
func ParseWei(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("amount cannot be empty")
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("amount must be an integer number of wei")
	}
	if v.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	return v, nil
}

// FormatEther форматирует wei в ETH с заданной точностью
func FormatEther(wei *big.Int, places int32) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -EtherDecimals).StringFixed(places)
}

// ValidateCID проверяет идентификатор контента IPFS
func ValidateCID(cid string) error {
	cid = strings.TrimSpace(cid)
	if cid == "" {
		return fmt.Errorf("content identifier cannot be empty")
	}
	if !cidRegex.MatchString(cid) {
		return fmt.Errorf("%q is not a valid content identifier", cid)
	}
	return nil
}

// ValidateTitle проверяет заголовок
func ValidateTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return fmt.Errorf("title cannot be empty")
	}

	if len(title) > MaxTitleLength {
		return fmt.Errorf("title cannot exceed %d characters", MaxTitleLength)
	}

	return nil
}

// ValidateDescription проверяет описание
func ValidateDescription(description string) error {
	if len(strings.TrimSpace(description)) > MaxDescriptionLength {
		return fmt.Errorf("description cannot exceed %d characters", MaxDescriptionLength)
	}
	return nil
}

// ValidateLocation проверяет адрес объекта
func ValidateLocation(location string) error {
	location = strings.TrimSpace(location)
	if location == "" {
		return fmt.Errorf("location cannot be empty")
	}
	if len(location) > MaxLocationLength {
		return fmt.Errorf("location cannot exceed %d characters", MaxLocationLength)
	}
	return nil
}

// ValidateNonNegativeInt проверяет, что число неотрицательное
func ValidateNonNegativeInt(value int64, fieldName string) error {
	if value < 0 {
		return fmt.Errorf("%s cannot be negative", fieldName)
	}
	return nil
}
