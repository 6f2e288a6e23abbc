package export

import "github.com/mtlprog/finances/internal/domain"

// Presentation is how an instrument type is shown in reports.
type Presentation struct {
	Label string
	Color string // fill of type cells, #RRGGBB
}

var presentations = map[domain.InstrumentType]Presentation{
	domain.InstrumentStock:          {Label: "Stocks", Color: "#DCE6F1"},
	domain.InstrumentETF:            {Label: "ETFs", Color: "#D9EAD3"},
	domain.InstrumentMutualFund:     {Label: "Mutual funds", Color: "#EAD1DC"},
	domain.InstrumentBond:           {Label: "Bonds", Color: "#FFF2CC"},
	domain.InstrumentSavingsAccount: {Label: "Savings accounts", Color: "#E2EFDA"},
	domain.InstrumentTermDeposit:    {Label: "Term deposits", Color: "#EDEDED"},
	domain.InstrumentCrypto:         {Label: "Cryptocurrencies", Color: "#FCE4D6"},
	domain.InstrumentCommodity:      {Label: "Commodities", Color: "#F8CBAD"},
	domain.InstrumentRealEstate:     {Label: "Real estate", Color: "#D0CECE"},
	domain.InstrumentIndex:          {Label: "Indices", Color: "#DDEBF7"},
	domain.InstrumentOther:          {Label: "Other", Color: "#F2F2F2"},
}

// PresentationOf returns the display metadata for t, falling back to other.
func PresentationOf(t domain.InstrumentType) Presentation {
	if p, ok := presentations[t]; ok {
		return p
	}
	return presentations[domain.InstrumentOther]
}
