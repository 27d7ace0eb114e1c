package services

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Roland735/cribmatch-website-sub000/models"
	"github.com/Roland735/cribmatch-website-sub000/utils"
)

const (
	msgMenu           = "Welcome to CribMatch! What would you like to do?"
	msgAskTitle       = "Let's list your property. What is the title of the listing? (e.g. 2-bed garden flat)"
	msgAskAreaBudget  = "Which area are you looking in, and what is your monthly budget? Reply like: Borrowdale, $200"
	msgTapToView      = "Tap a listing to see the contact details."
	msgSessionExpired = "Your previous session expired, so let's start again."
	msgListingFailed  = "Sorry, we couldn't save your listing right now. Please try again later by sending your description again."
	msgSearchFailed   = "Sorry, search is unavailable right now. Please try again shortly."
	msgListingGone    = "Sorry, that listing is no longer available. Reply MENU to search again."
	msgPaymentFailed  = "Sorry, we couldn't process that request right now. Please try again later."
)

var menuButtons = []Button{
	{ID: "menu_list", Title: "List a property"},
	{ID: "menu_search", Title: "Search properties"},
	{ID: "menu_purchases", Title: "View my purchases"},
}

var listingPrompts = map[models.ConversationState]string{
	models.StateListingWaitTitle:  msgAskTitle,
	models.StateListingWaitSuburb: "Which suburb is it in?",
	models.StateListingWaitType:   "What type of property is it? (e.g. Apartment, House, Cottage, Room)",
	models.StateListingWaitPrice:  "What is the monthly rent in USD? (e.g. 650)",
	models.StateListingWaitBeds:   "How many bedrooms?",
	models.StateListingWaitDesc:   "Add a short description, or reply SKIP.",
}

var listingLimits = map[models.ConversationState]string{
	models.StateListingWaitTitle:  "Please keep the title under 120 characters.",
	models.StateListingWaitSuburb: "Please keep the suburb under 80 characters.",
	models.StateListingWaitType:   "Please keep the property type under 60 characters.",
	models.StateListingWaitPrice:  "The rent can't be negative.",
	models.StateListingWaitBeds:   "Bedrooms must be a number from 0 to 50.",
}

func listingRejectedText(state models.ConversationState) string {
	return listingLimits[state] + " " + listingPrompts[state]
}

func money(amount float64) string {
	return "$" + strconv.FormatFloat(amount, 'f', -1, 64)
}

func listingCreatedText(l *models.Listing) string {
	return fmt.Sprintf("Your listing %q is live! Reference: %s\nTenants can reply CONTACT %s to reach you.",
		l.Title, l.Reference(), l.Reference())
}

func noResultsText(q utils.SearchQuery) string {
	var b strings.Builder
	b.WriteString("No listings found")
	if q.Area != "" {
		fmt.Fprintf(&b, " in %s", q.Area)
	}
	if q.Budget > 0 {
		fmt.Fprintf(&b, " within %s/month", money(q.Budget))
	}
	b.WriteString(". Try another area or budget, e.g. Avondale, $300")
	return b.String()
}

func searchSummaryText(q utils.SearchQuery, page *ListingPage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Found %d listing(s)", page.Total)
	if q.Area != "" {
		fmt.Fprintf(&b, " in %s", q.Area)
	}
	if q.Budget > 0 {
		fmt.Fprintf(&b, " up to %s/month", money(q.Budget))
	}
	b.WriteString(":\n")
	for i, l := range page.Listings {
		fmt.Fprintf(&b, "\n%d. %s (Ref %s)\n   %s, %s/month", i+1, l.Title, l.Reference(), l.Suburb, money(l.PricePerMonth))
		if l.Bedrooms > 0 {
			fmt.Fprintf(&b, ", %d bed", l.Bedrooms)
		}
	}
	b.WriteString("\n\nReply with a number to see contact details.")
	return b.String()
}

func invalidSelectionText(count int) string {
	if count == 0 {
		return "Invalid selection. There are no results to choose from, reply MENU to search again."
	}
	return fmt.Sprintf("Invalid selection. Reply with a number between 1 and %d, or MENU to start over.", count)
}

func contactDetailsText(l *models.Listing, photoURL string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (Ref %s)\n", l.Title, l.Reference())
	location := l.Suburb
	if l.City != "" {
		location = strings.TrimPrefix(location+", "+l.City, ", ")
	}
	if location != "" {
		fmt.Fprintf(&b, "Location: %s\n", location)
	}
	fmt.Fprintf(&b, "Rent: %s/month\n", money(l.PricePerMonth))
	if features := l.FeatureList(); len(features) > 0 {
		fmt.Fprintf(&b, "Features: %s\n", strings.Join(features, ", "))
	}

	name := l.ContactName
	if name == "" {
		name = l.ListerName
	}
	if name != "" {
		fmt.Fprintf(&b, "Contact: %s\n", name)
	}
	if number := l.ContactNumber(); number != "" {
		fmt.Fprintf(&b, "Phone: %s\nWhatsApp: %s\n", utils.DisplayPhone(number), utils.WhatsAppLink(number))
	}
	if l.ContactEmail != "" {
		fmt.Fprintf(&b, "Email: %s\n", l.ContactEmail)
	}
	if photoURL != "" {
		fmt.Fprintf(&b, "Photo: %s\n", photoURL)
	}
	return strings.TrimRight(b.String(), "\n")
}

func paymentInstructionsText(l *models.Listing, p *models.ContactPayment) string {
	return fmt.Sprintf("To unlock the contact details for %s (Ref %s), please pay %s %.2f.\n"+
		"Payment reference: %s\nOnce paid, reply: PAID %s",
		l.Title, l.Reference(), p.Currency, p.Amount, p.ID, p.ID)
}

func paymentNotFoundText(ref string) string {
	return fmt.Sprintf("We couldn't find a pending payment with reference %s. Check the reference and try again.", ref)
}

func purchasesText(payments []models.ContactPayment) string {
	if len(payments) == 0 {
		return "You haven't unlocked any contacts yet. Reply CONTACT <listing ref> to unlock one."
	}
	var b strings.Builder
	b.WriteString("Your unlocked contacts:\n")
	for i, p := range payments {
		l := p.Listing
		fmt.Fprintf(&b, "\n%d. %s (Ref %s)", i+1, l.Title, l.Reference())
		if number := l.ContactNumber(); number != "" {
			fmt.Fprintf(&b, " - %s", utils.DisplayPhone(number))
		}
	}
	return b.String()
}
