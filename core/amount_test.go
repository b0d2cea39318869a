package core

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/suite"
)

type AmountTestSuite struct {
	suite.Suite
}

func (suite *AmountTestSuite) TestToBaseUnits() {
	cases := []struct {
		amount   string
		decimals uint8
		expected string
	}{
		{"1.5", 6, "1500000"},
		{"2.0", 18, "2000000000000000000"},
		{"0", 18, "0"},
		{"0.000001", 6, "1"},
		{"42", 0, "42"},
		{"1.50", 1, "15"},
		{"007", 2, "700"},
	}

	for _, c := range cases {
		value, err := ToBaseUnits(c.amount, c.decimals)
		suite.Require().NoError(err, c.amount)
		suite.Equal(c.expected, value.String(), c.amount)
	}
}

func (suite *AmountTestSuite) TestToBaseUnitsRejects() {
	cases := []struct {
		amount   string
		decimals uint8
	}{
		{"1.23456789", 6},
		{"-1", 6},
		{"", 6},
		{"1e18", 0},
		{".5", 6},
		{"5.", 6},
		{"1,5", 6},
		{" 1", 6},
		{"abc", 6},
		{"0.5", 0},
	}

	for _, c := range cases {
		_, err := ToBaseUnits(c.amount, c.decimals)
		suite.Require().ErrorIs(err, ErrMalformedAmount, c.amount)
	}
}

func (suite *AmountTestSuite) TestToBaseUnitsOverflow() {
	_, err := ToBaseUnits(MaxUint256.String(), 0)
	suite.Require().NoError(err)

	overflow := new(big.Int).Add(MaxUint256, big.NewInt(1))
	_, err = ToBaseUnits(overflow.String(), 0)
	suite.Require().ErrorIs(err, ErrMalformedAmount)

	_, err = ToBaseUnits(MaxUint256.String(), 1)
	suite.Require().ErrorIs(err, ErrMalformedAmount)
}

func (suite *AmountTestSuite) TestFormatUnits() {
	suite.Equal("1.5", FormatUnits(big.NewInt(1500000), 6))
	suite.Equal("0.000001", FormatUnits(big.NewInt(1), 6))
	suite.Equal("2", FormatUnits(new(big.Int).Mul(big.NewInt(2), new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)), 18))
	suite.Equal("0", FormatUnits(nil, 18))
}

func (suite *AmountTestSuite) TestRoundTrip() {
	for _, amount := range []string{"1.5", "0.000123", "1000000", "3.14159"} {
		value, err := ToBaseUnits(amount, 8)
		suite.Require().NoError(err)
		suite.Equal(amount, FormatUnits(value, 8))
	}
}

func TestAmountTestSuite(t *testing.T) {
	suite.Run(t, new(AmountTestSuite))
}
