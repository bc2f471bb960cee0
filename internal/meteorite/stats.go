package meteorite

// Mass distribution buckets.
const (
	MassUnder1kg  = "<1kg"
	Mass1To10kg   = "1-10kg"
	MassOver10kg  = ">10kg"
	massSmallMaxG = 1000
	massMidMaxG   = 10000
)

// MassCategories lists the buckets from lightest to heaviest.
var MassCategories = []string{MassUnder1kg, Mass1To10kg, MassOver10kg}

// MassCategory buckets a mass given in grams.
func MassCategory(grams float64) string {
	switch {
	case grams < massSmallMaxG:
		return MassUnder1kg
	case grams < massMidMaxG:
		return Mass1To10kg
	default:
		return MassOver10kg
	}
}
