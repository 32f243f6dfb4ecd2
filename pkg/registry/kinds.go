// pkg/registry/kinds.go
package registry

import "geodialogue/internal/models"

func bound(v float64) *float64 { return &v }

func cityParam() ParamDescriptor {
	return ParamDescriptor{
		Name:        "city",
		Type:        models.ParamCoordinate,
		Question:    "Which city would you like to analyze? (e.g. Jakarta, Seoul, Bangkok)",
		Description: "Canonical city name from the location table; the engine falls back to its default extent when unset",
	}
}

func yearParam(min, max float64) ParamDescriptor {
	return ParamDescriptor{
		Name:        "year",
		Type:        models.ParamYear,
		Required:    true,
		Minimum:     bound(min),
		Maximum:     bound(max),
		Question:    "What year would you like to analyze? ({min}-{max}, e.g. 2020)",
		Description: "Analysis year",
	}
}

func thresholdParam() ParamDescriptor {
	return ParamDescriptor{
		Name:        "threshold",
		Type:        models.ParamFloat,
		Required:    true,
		Default:     2.0,
		Minimum:     bound(0.5),
		Maximum:     bound(5.0),
		Question:    "Please set the sea level rise threshold in meters ({min}-{max}, e.g. 2.0m, 1.5m)",
		Description: "Sea level rise in meters",
	}
}

// builtinSchemas is the static schema table. Adding a kind means adding a row
// here and a constant in models.
func builtinSchemas() []*Schema {
	urbanYear := yearParam(2001, 2020)
	urbanYear.OneOf = "period"

	return []*Schema{
		{
			Kind:        models.KindSeaLevelRise,
			DisplayName: "Sea level rise",
			Description: "Areas below a sea level rise threshold for a given year",
			Params: []ParamDescriptor{
				cityParam(),
				yearParam(2000, 2024),
				thresholdParam(),
			},
		},
		{
			Kind:        models.KindUrbanDevelopment,
			DisplayName: "Urban development",
			Description: "Built-up area statistics for one year or growth between two years",
			Params: []ParamDescriptor{
				cityParam(),
				urbanYear,
				{
					Name:        "start_year",
					Type:        models.ParamYear,
					Required:    true,
					Minimum:     bound(2001),
					Maximum:     bound(2020),
					DependsOn:   "end_year",
					OneOf:       "period",
					Question:    "Which year should the comparison start from? ({min}-{max})",
					Description: "First year of a growth comparison",
				},
				{
					Name:        "end_year",
					Type:        models.ParamYear,
					Required:    true,
					Minimum:     bound(2001),
					Maximum:     bound(2020),
					DependsOn:   "start_year",
					OneOf:       "period",
					Question:    "Which year should the comparison end at? ({min}-{max})",
					Description: "Last year of a growth comparison",
				},
			},
		},
		{
			Kind:        models.KindInfrastructureExposure,
			DisplayName: "Infrastructure exposure",
			Description: "Roads, buildings and facilities inside the flooded area",
			Params: []ParamDescriptor{
				cityParam(),
				yearParam(2000, 2024),
				thresholdParam(),
			},
		},
		{
			Kind:        models.KindPopulationExposure,
			DisplayName: "Population exposure",
			Description: "Residents living inside the flooded area",
			Params: []ParamDescriptor{
				cityParam(),
				yearParam(2000, 2020),
				thresholdParam(),
			},
		},
		{
			Kind:        models.KindTopicModeling,
			DisplayName: "Topic modeling",
			Description: "Topics found in pasted text or uploaded documents",
			Params: []ParamDescriptor{
				{
					Name:        "text_input",
					Type:        models.ParamText,
					Required:    true,
					OneOf:       "input",
					Question:    "Please paste the text you want to analyze, or name the files to use.",
					Description: "Raw text to model",
				},
				{
					Name:        "files",
					Type:        models.ParamFileList,
					Required:    true,
					OneOf:       "input",
					Question:    "Which uploaded files should be analyzed?",
					Description: "Names of previously uploaded documents",
				},
				{
					Name:        "method",
					Type:        models.ParamString,
					Required:    true,
					Default:     "lda",
					Enum:        []string{"lda", "nmf", "bertopic"},
					Question:    "Which method should be used? ({enum})",
					Description: "Topic model",
				},
				{
					Name:        "n_topics",
					Type:        models.ParamInteger,
					Required:    true,
					Default:     5,
					Minimum:     bound(2),
					Maximum:     bound(20),
					Question:    "How many topics should be extracted? ({min}-{max})",
					Description: "Number of topics",
				},
			},
		},
	}
}
