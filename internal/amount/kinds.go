package amount

var (
	Usdc = NewKind("Usdc", "USDC", "µUSDC",
		Unit{"USDC", R(1)},
		Unit{"µUSDC", Frac(1, 1_000_000)},
	)

	Sol = NewKind("Sol", "SOL", "lamports",
		Unit{"SOL", R(1)},
		Unit{"lamports", Frac(1, 1_000_000_000)},
	)

	EvmGasToken = NewKind("EvmGasToken", "ETH", "wei",
		Unit{"ETH", R(1)},
		Unit{"Gwei", Frac(1, 1_000_000_000)},
		Unit{"Mwei", Frac(1, 1_000_000_000_000)},
		Unit{"wei", Frac(1, 1_000_000_000_000_000_000)},
	)

	// GenericGasToken carries gas-dropoff requests before they are mapped to a
	// concrete destination gas token.
	GenericGasToken = NewKind("GenericGasToken", "GasToken", "nGasToken",
		Unit{"GasToken", R(1)},
		Unit{"mGasToken", Frac(1, 1_000)},
		Unit{"µGasToken", Frac(1, 1_000_000)},
		Unit{"nGasToken", Frac(1, 1_000_000_000)},
	)

	Percentage = NewKind("Percentage", "%", "bp",
		Unit{"scalar", R(1)},
		Unit{"%", Frac(1, 100)},
		Unit{"bp", Frac(1, 10_000)},
	)

	Duration = NewKind("Duration", "sec", "msec",
		Unit{"sec", R(1)},
		Unit{"msec", Frac(1, 1000)},
		Unit{"min", R(60)},
	)

	Byte = NewKind("Byte", "byte", "byte",
		Unit{"byte", R(1)},
		Unit{"kB", R(1000)},
	)

	Gas = NewKind("Gas", "gas", "gas",
		Unit{"gas", R(1)},
		Unit{"kGas", R(1000)},
	)

	Usd = NewKind("Usd", "USD", "cent",
		Unit{"USD", R(1)},
		Unit{"cent", Frac(1, 100)},
	)
)

// MicroUsdc returns v µUSDC.
func MicroUsdc(v int64) Amount { return FromInt(Usdc, v, "µUSDC") }

// Pct returns v percent.
func Pct(v Rational) Amount { return MustOf(Percentage, v, "%") }

// Seconds returns a Duration amount of v seconds.
func Seconds(v Rational) Amount { return MustOf(Duration, v, "sec") }

// MulPercentage returns a × p.
func MulPercentage(a Amount, p Amount) Amount {
	if !p.kind.Same(Percentage) {
		panic(&KindMismatchError{Op: "mulPercentage", Left: a.kind.String(), Right: p.kind.String()})
	}
	return a.Mul(p.value)
}

// GasTokenOf converts a generic gas-token amount 1:1 (human units) into the
// concrete gas token kind k.
func GasTokenOf(k *Kind, generic Amount) Amount {
	if !generic.kind.Same(GenericGasToken) {
		panic(&KindMismatchError{Op: "gasTokenOf", Left: generic.kind.String(), Right: GenericGasToken.Name})
	}
	return MustOf(k, generic.In("human"), "human")
}
