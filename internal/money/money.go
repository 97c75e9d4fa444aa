// Package money suma precios sin errores de redondeo binario y los formatea como moneda local.
package money

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Formatter formatea montos con una convención de moneda fija (locale + código ISO).
type Formatter struct {
	unit    currency.Unit
	printer *message.Printer
}

// NewFormatter crea un formatter para el locale BCP 47 y el código ISO 4217 indicados,
// por ejemplo ("pt-BR", "BRL").
func NewFormatter(locale, code string) (*Formatter, error) {
	tag, err := language.Parse(locale)
	if err != nil {
		return nil, fmt.Errorf("invalid currency locale %q: %w", locale, err)
	}
	unit, err := currency.ParseISO(code)
	if err != nil {
		return nil, fmt.Errorf("invalid currency code %q: %w", code, err)
	}
	return &Formatter{unit: unit, printer: message.NewPrinter(tag)}, nil
}

// MustFormatter entra en pánico si el locale o la moneda son inválidos.
func MustFormatter(locale, code string) *Formatter {
	formatter, err := NewFormatter(locale, code)
	if err != nil {
		panic(err)
	}
	return formatter
}

// Format devuelve el monto con símbolo y separadores del locale, ej. "R$ 1.234,50".
func (formatter *Formatter) Format(amount decimal.Decimal) string {
	value, _ := amount.Round(int32(formatter.scale())).Float64()
	return formatter.printer.Sprint(currency.Symbol(formatter.unit.Amount(value)))
}

func (formatter *Formatter) scale() int {
	scale, _ := currency.Standard.Rounding(formatter.unit)
	return scale
}

// Sum suma precios en decimal. Los nil no aportan nada.
func Sum(prices []*float64) decimal.Decimal {
	total := decimal.Zero
	for _, price := range prices {
		if price == nil {
			continue
		}
		total = total.Add(decimal.NewFromFloat(*price))
	}
	return total
}

// maxPriceExponent acota el exponente decimal aceptado: convertir a float64 arma
// 10^|exp| como big.Int, así que un exponente enorme cuesta segundos de CPU.
const maxPriceExponent = 400

// ParsePrice interpreta el texto como número decimal (punto como separador, admite exponente).
// Rechaza valores negativos y los que no entran en un float64.
func ParsePrice(text string) (float64, error) {
	value, err := decimal.NewFromString(text)
	if err != nil {
		return 0, err
	}
	if value.IsNegative() {
		return 0, fmt.Errorf("negative price %s", text)
	}
	if exponent := value.Exponent(); exponent > maxPriceExponent || exponent < -maxPriceExponent {
		return 0, fmt.Errorf("price %s out of range", text)
	}
	price, _ := value.Float64()
	if math.IsInf(price, 0) {
		return 0, fmt.Errorf("price %s out of range", text)
	}
	return price, nil
}
