// Package pricing computes Black-Scholes Greeks for European options.
package pricing

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat/distuv"
)

// OptionType is call or put.
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

var (
	ErrInvalidOption = errors.New("invalid option")
	ErrUnknownType   = errors.New("unknown option type")
)

// Option 单个期权的定价参数。TimeToExpiry 以年为单位，Volatility 为年化。
type Option struct {
	Underlying   float64    `yaml:"underlying" json:"underlying"`
	Strike       float64    `yaml:"strike" json:"strike"`
	RiskFreeRate float64    `yaml:"riskFreeRate" json:"riskFreeRate"`
	Volatility   float64    `yaml:"volatility" json:"volatility"`
	TimeToExpiry float64    `yaml:"timeToExpiry" json:"timeToExpiry"`
	Type         OptionType `yaml:"type" json:"type"`
}

// Validate rejects parameters for which d1 is undefined.
func (o Option) Validate() error {
	switch {
	case !(o.Underlying > 0):
		return fmt.Errorf("%w: underlying %v", ErrInvalidOption, o.Underlying)
	case !(o.Strike > 0):
		return fmt.Errorf("%w: strike %v", ErrInvalidOption, o.Strike)
	case !(o.Volatility > 0):
		return fmt.Errorf("%w: volatility %v", ErrInvalidOption, o.Volatility)
	case !(o.TimeToExpiry > 0):
		return fmt.Errorf("%w: timeToExpiry %v", ErrInvalidOption, o.TimeToExpiry)
	case math.IsNaN(o.RiskFreeRate) || math.IsInf(o.RiskFreeRate, 0):
		return fmt.Errorf("%w: riskFreeRate %v", ErrInvalidOption, o.RiskFreeRate)
	}
	if o.Type != Call && o.Type != Put {
		return fmt.Errorf("%w: %q", ErrUnknownType, o.Type)
	}
	return nil
}

// Distribution is the standard normal used by the model.
type Distribution interface {
	CDF(x float64) float64
	Prob(x float64) float64
}

// Greeks 一阶/二阶敏感度。Theta 按年计。
type Greeks struct {
	Delta float64 `json:"delta"`
	Gamma float64 `json:"gamma"`
	Theta float64 `json:"theta"`
	Vega  float64 `json:"vega"`
}

// Calculator evaluates Greeks with an injected distribution.
type Calculator struct {
	Dist Distribution
}

// NewCalculator uses the gonum standard normal.
func NewCalculator() *Calculator {
	return &Calculator{Dist: distuv.UnitNormal}
}

// D1D2 returns the Black-Scholes d1 and d2 terms.
func D1D2(o Option) (d1, d2 float64) {
	sqrtT := math.Sqrt(o.TimeToExpiry)
	d1 = (math.Log(o.Underlying/o.Strike) + (o.RiskFreeRate+0.5*o.Volatility*o.Volatility)*o.TimeToExpiry) /
		(o.Volatility * sqrtT)
	d2 = d1 - o.Volatility*sqrtT
	return d1, d2
}

func (c *Calculator) Delta(o Option) float64 {
	d1, _ := D1D2(o)
	if o.Type == Put {
		return -c.Dist.CDF(-d1)
	}
	return c.Dist.CDF(d1)
}

func (c *Calculator) Gamma(o Option) float64 {
	d1, _ := D1D2(o)
	return c.Dist.Prob(d1) / (o.Underlying * o.Volatility * math.Sqrt(o.TimeToExpiry))
}

func (c *Calculator) Theta(o Option) float64 {
	d1, d2 := D1D2(o)
	decay := -(o.Underlying * o.Volatility * c.Dist.Prob(d1)) / (2 * math.Sqrt(o.TimeToExpiry))
	carry := o.RiskFreeRate * o.Strike * math.Exp(-o.RiskFreeRate*o.TimeToExpiry)
	if o.Type == Put {
		return decay + carry*c.Dist.CDF(-d2)
	}
	return decay - carry*c.Dist.CDF(d2)
}

func (c *Calculator) Vega(o Option) float64 {
	d1, _ := D1D2(o)
	return o.Underlying * math.Sqrt(o.TimeToExpiry) * c.Dist.Prob(d1)
}

// Greeks validates o and returns all four sensitivities.
func (c *Calculator) Greeks(o Option) (Greeks, error) {
	if err := o.Validate(); err != nil {
		return Greeks{}, err
	}
	return Greeks{
		Delta: c.Delta(o),
		Gamma: c.Gamma(o),
		Theta: c.Theta(o),
		Vega:  c.Vega(o),
	}, nil
}

// Portfolio sums the Greeks of every option; the first invalid option aborts.
func (c *Calculator) Portfolio(book []Option) (Greeks, error) {
	var total Greeks
	for i, o := range book {
		g, err := c.Greeks(o)
		if err != nil {
			return Greeks{}, fmt.Errorf("option %d: %w", i, err)
		}
		total.Delta += g.Delta
		total.Gamma += g.Gamma
		total.Theta += g.Theta
		total.Vega += g.Vega
	}
	return total, nil
}
