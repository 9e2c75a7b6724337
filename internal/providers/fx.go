package providers

import (
	"github.com/smallbiznis/campaignbridge/internal/providers/alert"
	"github.com/smallbiznis/campaignbridge/internal/providers/awscfg"
	"github.com/smallbiznis/campaignbridge/internal/providers/email"
	"github.com/smallbiznis/campaignbridge/internal/providers/pdf"
	"github.com/smallbiznis/campaignbridge/internal/providers/stripe"
	"go.uber.org/fx"
)

var Module = fx.Module("providers",
	awscfg.Module,
	stripe.Module,
	pdf.Module,
	email.Module,
	alert.Module,
)
