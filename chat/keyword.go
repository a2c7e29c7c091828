package chat

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/alecthomas/errors"

	"github.com/floatchat/floatchat/argo"
	"github.com/floatchat/floatchat/argo/query"
)

const helpReply = `I can help you analyze ARGO float data! Try asking about:
• Temperature profiles and trends
• Salinity measurements
• Float locations and trajectories
• Depth profiles
• Specific regions like 'near the equator'
• Filters like 'show floats where lat > 5 and lon < 70'

What would you like to explore?`

type keywordRule struct {
	keywords []string
	response func() Response
}

var keywordRules = []keywordRule{
	{[]string{"temperature", "warm"}, func() Response {
		return Response{
			Reply:      "Based on recent ARGO float data, I found interesting temperature patterns in the Arabian Sea. The surface temperatures have been averaging 28.5°C, which is slightly above the seasonal average. Float 1902672 shows a warming trend over the past week.",
			Actions:    []Action{Highlight("1902672", "1902677"), Visualize("temperature_map")},
			SQLQuery:   "SELECT wmo, temperature, lat, lon FROM argo_profiles WHERE variable = 'TEMP' AND lat BETWEEN 10 AND 25",
			Confidence: 0.89,
		}
	}},
	{[]string{"salinity", "salt"}, func() Response {
		return Response{
			Reply:      "Salinity measurements from the active floats show normal variations. Current surface salinity ranges from 34.8 to 36.1 PSU in the monitored regions. Float 2900533 in the Arabian Sea shows the highest salinity at 36.1 PSU.",
			Actions:    []Action{Compare("2900533", "2902201"), Visualize("salinity_profile")},
			SQLQuery:   "SELECT wmo, salinity, lat, lon FROM argo_profiles WHERE variable = 'PSAL'",
			Confidence: 0.92,
		}
	}},
	{[]string{"location", "map", "where"}, func() Response {
		return Response{
			Reply:      "I'm showing you the locations of our active ARGO floats. We currently have 5 active floats monitoring the Indian Ocean and Arabian Sea. You can see their positions and recent trajectories on the map.",
			Actions:    []Action{Highlight("1902672", "1902677", "2900464", "2900533", "2902201")},
			Confidence: 0.95,
		}
	}},
	{[]string{"profile", "depth"}, func() Response {
		return Response{
			Reply:      "Here are the vertical profiles from our most active floats. The data shows typical ocean stratification with warmer temperatures at the surface decreasing with depth. The thermocline is clearly visible around 100-200m depth.",
			Actions:    []Action{Visualize("depth_profile"), Compare("1902672", "2900464")},
			Confidence: 0.88,
		}
	}},
	{[]string{"equator"}, func() Response {
		return Response{
			Reply:      "Near the equator, Float 2900464 is providing excellent data. The equatorial region shows minimal temperature variation at the surface (around 27.8°C) but interesting subsurface dynamics. The salinity is relatively stable at 35.7 PSU.",
			Actions:    []Action{Highlight("2900464"), Visualize("equatorial_analysis")},
			SQLQuery:   "SELECT * FROM argo_profiles WHERE lat BETWEEN -5 AND 5",
			Confidence: 0.91,
		}
	}},
}

// KeywordResponder answers from a fixed set of keyword rules, and runs
// "where <expression>" filters against the store.
type KeywordResponder struct {
	store argo.Store
}

var _ Responder = (*KeywordResponder)(nil)

func NewKeywordResponder(store argo.Store) *KeywordResponder {
	return &KeywordResponder{store: store}
}

func (k *KeywordResponder) Respond(ctx context.Context, req Request) (Response, error) {
	if err := req.Validate(); err != nil {
		return Response{}, errors.WithStack(err)
	}
	expr, filter, ok := whereClause(req.Message)
	if ok {
		extra, err := FilterFromMap(req.Filters)
		if err != nil {
			return Response{}, errors.WithStack(err)
		}
		return k.respondToFilter(ctx, expr, extra.Merge(filter))
	}
	message := strings.ToLower(req.Message)
	for _, rule := range keywordRules {
		for _, keyword := range rule.keywords {
			if strings.Contains(message, keyword) {
				return rule.response(), nil
			}
		}
	}
	return Response{Reply: helpReply, Actions: []Action{}, Confidence: 0.75}, nil
}

func (k *KeywordResponder) respondToFilter(ctx context.Context, expr *query.Expression, filter argo.Filter) (Response, error) {
	floats, err := k.store.Floats(ctx, filter)
	if err != nil {
		return Response{}, errors.Errorf("failed to query floats: %w", err)
	}
	ids := make([]string, 0, len(floats))
	for _, float := range floats {
		ids = append(ids, float.ID)
	}
	var reply string
	switch len(ids) {
	case 0:
		reply = fmt.Sprintf("No floats match %s.", expr)
	case 1:
		reply = fmt.Sprintf("Float %s matches %s.", ids[0], expr)
	default:
		reply = fmt.Sprintf("%d floats match %s: %s.", len(ids), expr, strings.Join(ids, ", "))
	}
	return Response{
		Reply:      reply,
		Actions:    []Action{Highlight(ids...)},
		SQLQuery:   filter.SQL(),
		Confidence: 0.9,
	}, nil
}

var whereRe = regexp.MustCompile(`(?is)^.*\bwhere\s+(.+)$`)

// whereClause finds a parsable filter expression following the last "where" in a message.
func whereClause(message string) (*query.Expression, argo.Filter, bool) {
	match := whereRe.FindStringSubmatch(message)
	if match == nil {
		return nil, argo.Filter{}, false
	}
	text := strings.TrimRight(strings.TrimSpace(match[1]), "?.!")
	expr, err := query.ParseExpression(text)
	if err != nil {
		return nil, argo.Filter{}, false
	}
	filter, err := expr.Filter()
	if err != nil {
		return nil, argo.Filter{}, false
	}
	return expr, filter, true
}
