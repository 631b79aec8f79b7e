package practice

// SamplePractices is the fixed directory used when persistence is not
// configured or unavailable, and the data loaded by `seed practices`.
func SamplePractices() []Practice {
	return []Practice{
		{
			Code:     "A12345",
			Name:     "Riverside Medical Centre",
			Endpoint: "https://gpconnect.riverside-mc.example.nhs.uk/fhir",
			ASID:     "918999198738",
			Email:    "riverside.appointments@nhs.example",
			Phone:    "+441632960001",
			Active:   true,
		},
		{
			Code:     "B67890",
			Name:     "Hillview Surgery",
			Endpoint: "https://gpconnect.hillview.example.nhs.uk/fhir",
			ASID:     "918999198739",
			Email:    "hillview.reception@nhs.example",
			Active:   true,
		},
		{
			Code:     "C24680",
			Name:     "Oakwood Health Centre",
			Endpoint: "https://gpconnect.oakwood-hc.example.nhs.uk/fhir",
			ASID:     "918999198740",
			Email:    "oakwood.admin@nhs.example",
			Phone:    "+441632960003",
			Active:   true,
		},
		{
			Code:     "D13579",
			Name:     "Meadow Lane Practice",
			Endpoint: "https://gpconnect.meadowlane.example.nhs.uk/fhir",
			ASID:     "918999198741",
			Active:   false,
		},
	}
}
