package nepali

import (
	"math/rand/v2"
	"strings"
)

// Response kinds understood by Responder.
const (
	KindGreeting           = "greeting"
	KindThanks             = "thanks"
	KindBye                = "bye"
	KindProductNotFound    = "product_not_found"
	KindOrderAskIdentifier = "order_ask_identifier"
	KindOrderFound         = "order_found"
	KindOrderNotFound      = "order_not_found"
	KindProductShow        = "product_show"
	KindBuyConfirm         = "buy_confirm"
	KindAskQuantity        = "ask_quantity"
	KindAskName            = "ask_name"
	KindAskPhone           = "ask_phone"
	KindAskLocation        = "ask_location"
	KindAskLandmark        = "ask_landmark"
	KindOrderConfirm       = "order_confirm"
	KindOrderSuccess       = "order_success"
	KindPolicyInfo         = "policy_info"
	KindSupportAsk         = "support_ask"
	KindSuggestions        = "suggestions"
	KindFallback           = "fallback"
)

var nepaliTemplates = map[string][]string{
	KindGreeting: {
		"Namaste! OVN Store ma swagat cha! Kasari help garna sakchu?",
		"Namaskar! Aaja k help chahinchha?",
		"Hello! OVN Store ma welcome! K kinna chahanu huncha?",
	},
	KindThanks: {
		"Dhanyabad! Aru kehi help chahinchha?",
		"You're welcome! Pheri aaunus!",
		"Khusi lagyo help garna paayera!",
	},
	KindBye: {
		"Dhanyabad! Pheri bhetaula!",
		"Bye! OVN Store ma pheri aaunu hola!",
		"Ramro sangha! Order ko laagi dhanyabad!",
	},
	KindProductNotFound: {
		"Maaf, tyo product bhetiyena. Arko naam le try garnus.",
		"Product khojina sakena. Different keyword try garnus.",
		"Tyo product available chaina. Aru kehi hernu huncha?",
	},
	KindOrderAskIdentifier: {
		"Order track garna phone number ya order ID dinus.",
		"Tapai ko phone number ki order number dinus, ma track garchu.",
		"Phone number (10 digits) dinus order check garna.",
	},
	KindOrderFound: {
		"Order bhetyo! Yo ho tapai ko order details:",
		"Tapai ko order yaha cha:",
		"Order status yaha hernus:",
	},
	KindOrderNotFound: {
		"Maaf, order bhetiyena. Order ID check garera feri try garnus.",
		"Tyo order chaina. Number ramrari check garnus.",
		"Order khojina sakena. Different ID try garnus.",
	},
	KindProductShow: {
		"Yo hera tapai le khojeko products:",
		"Hamro store ma yo products cha:",
		"Yehi products available cha:",
	},
	KindBuyConfirm: {
		"Ramro choice! Yo product order garnu huncha?",
		"Nice! Yo kinnu huncha?",
		"Great! Yo add garnu huncha order ma?",
	},
	KindAskQuantity: {
		"Kati wota chahinchha?",
		"Quantity kati ho?",
		"Kati order garnu huncha?",
	},
	KindAskName: {
		"Tapai ko naam k ho?",
		"Full name dinus please.",
		"Delivery ko laagi naam dinus.",
	},
	KindAskPhone: {
		"Phone number dinus (10 digits).",
		"Contact number dinus.",
		"Mobile number k ho tapai ko?",
	},
	KindAskLocation: {
		"Delivery kata garne? District ra location dinus.",
		"Address dinus - kun thau ma pathaaune?",
		"Delivery location k ho?",
	},
	KindAskLandmark: {
		"Najik ko landmark k cha? (Skip garna 'skip' type garnus)",
		"Kei landmark cha nearby?",
		"Thau chinne kei cha? (optional)",
	},
	KindOrderConfirm: {
		"Order summary yo ho. Confirm garnu huncha?",
		"Yeso hernus order details. Thik cha?",
		"Order place garne ho? Confirm garnus.",
	},
	KindOrderSuccess: {
		"Order successfully place bhayo! Order number: {order_id}. 3-5 din ma delivery huncha.",
		"Dhanyabad! Order #{order_id} confirm bhayo. Cash on Delivery ho.",
		"Great! Order complete. #{order_id} - Delivery 3-5 business days ma.",
	},
	KindPolicyInfo: {
		"OVN Store Policies:\n- Rs.1000 mathi free shipping\n- 7 din return policy\n- Cash on Delivery available\n- 3-5 din ma delivery Nepal bhari",
		"Hamro policy:\n- Free delivery Rs.1000+\n- 7 days return\n- COD available\n- Nepal wide delivery",
	},
	KindSupportAsk: {
		"K samasya cha? Details dinus, help garchu.",
		"Problem k ho? Describe garnus.",
		"Support chahinchha? K bhayo bataunus.",
	},
	KindSuggestions: {
		"Tapai lai yo products ni man parna sakcha:",
		"Yo pani hera, ramro cha:",
		"Related products:",
	},
	KindFallback: {
		"Maile bujhina. Feri bhannus please?",
		"K bhannu bhako thik bujhina. Arko tarika le bhannus.",
		"Sorry, clear bhayena. Can you rephrase?",
	},
}

var englishTemplates = map[string]string{
	KindGreeting: "Hello! Welcome to OVN Store! How can I help you?",
	KindThanks:   "You're welcome! Anything else I can help with?",
	KindBye:      "Thank you for visiting! Have a great day!",
	KindFallback: "I didn't understand that. Could you please rephrase?",
}

// Responder picks a response template for a kind, in Nepali when the customer writes Nepali.
type Responder struct {
	pick func(n int) int
}

// ResponderOption configures a Responder.
type ResponderOption func(*Responder)

// WithPicker replaces the random template choice, for tests.
func WithPicker(pick func(n int) int) ResponderOption {
	return func(r *Responder) { r.pick = pick }
}

// NewResponder creates a Responder that picks templates at random.
func NewResponder(opts ...ResponderOption) *Responder {
	r := &Responder{pick: func(n int) int { return rand.IntN(n) }}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Response returns a template of the given kind with {name} placeholders filled from vars.
// Without Nepali, or without a Nepali template for kind, the English template is used, and
// unknown English kinds get the English fallback.
func (r *Responder) Response(kind string, useNepali bool, vars map[string]string) string {
	var text string
	if bank := nepaliTemplates[kind]; useNepali && len(bank) > 0 {
		text = bank[r.pick(len(bank))]
	} else if en, ok := englishTemplates[kind]; ok {
		text = en
	} else {
		text = englishTemplates[KindFallback]
	}
	for k, v := range vars {
		text = strings.ReplaceAll(text, "{"+k+"}", v)
	}
	return text
}

// HasTemplate reports whether a Nepali template exists for kind.
func HasTemplate(kind string) bool {
	return len(nepaliTemplates[kind]) > 0
}
