package progress

import (
	"testing"

	"github.com/smallbiznis/campaignbridge/internal/campaign/domain"
	"github.com/stretchr/testify/assert"
)

func TestNormalizeLocationPrecedence(t *testing.T) {
	cases := []struct {
		name     string
		shipping *domain.Address
		billing  *domain.Address
		want     string
	}{
		{"city and province", &domain.Address{City: "Austin", Province: "Texas", Country: "US"}, nil, "Austin, Texas"},
		{"province code", &domain.Address{City: "Austin", ProvinceCode: "TX"}, nil, "Austin, TX"},
		{"city only", &domain.Address{City: " Lyon ", Country: "France"}, nil, "Lyon"},
		{"province only", &domain.Address{Province: "Ontario", Country: "Canada"}, nil, "Ontario"},
		{"country only", &domain.Address{Country: "Japan"}, nil, "Japan"},
		{"billing fallback", &domain.Address{}, &domain.Address{City: "Oslo"}, "Oslo"},
		{"shipping wins over richer billing", &domain.Address{Country: "Norway"}, &domain.Address{City: "Oslo", Province: "Oslo"}, "Norway"},
		{"nothing", nil, nil, "UNKNOWN"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeLocation(tc.shipping, tc.billing))
		})
	}
}

func TestMaskEmail(t *testing.T) {
	assert.Equal(t, "j***@example.com", MaskEmail("jane.doe@example.com"))
	assert.Equal(t, "", MaskEmail(""))
	assert.Equal(t, "", MaskEmail("@example.com"))
	assert.Equal(t, "", MaskEmail("jane@"))
	assert.Equal(t, "é***@example.com", MaskEmail("élodie@example.com"))
	assert.Equal(t, "李***@example.cn", MaskEmail("李雷@example.cn"))
}

func TestPrependBackerWithoutOrderRefAlwaysAppends(t *testing.T) {
	feed := []domain.BackerEntry{{Name: "a"}}
	out, changed := PrependBacker(feed, domain.BackerEntry{Name: "b"}, 50)
	assert.True(t, changed)
	assert.Len(t, out, 2)
	assert.Equal(t, "b", out[0].Name)
}
