package aws

// onDemandRates holds Linux on-demand hourly prices in USD by region and
// instance type. EC2 does not expose prices through DescribeInstanceTypes.
var onDemandRates = map[string]map[string]float64{
	"ap-northeast-1": {
		"c5.large":   0.1070,
		"c5.xlarge":  0.2140,
		"c5.2xlarge": 0.4280,
		"m5.large":   0.1240,
		"m5.xlarge":  0.2480,
		"m5.2xlarge": 0.4960,
		"m5.4xlarge": 0.9920,
		"r5.large":   0.1520,
		"r5.xlarge":  0.3040,
		"r5.2xlarge": 0.6080,
		"t3.micro":   0.0136,
		"t3.small":   0.0272,
		"t3.medium":  0.0544,
		"t3.large":   0.1088,
		"t3.xlarge":  0.2176,
	},
	"eu-central-1": {
		"c5.large":   0.0970,
		"c5.xlarge":  0.1940,
		"c5.2xlarge": 0.3880,
		"m5.large":   0.1150,
		"m5.xlarge":  0.2300,
		"m5.2xlarge": 0.4600,
		"m5.4xlarge": 0.9200,
		"r5.large":   0.1520,
		"r5.xlarge":  0.3040,
		"r5.2xlarge": 0.6080,
		"t3.micro":   0.0120,
		"t3.small":   0.0240,
		"t3.medium":  0.0480,
		"t3.large":   0.0960,
		"t3.xlarge":  0.1920,
	},
	"eu-west-3": {
		"c5.2xlarge": 0.4040,
		"c5.xlarge":  0.2020,
		"c5.large":   0.1010,
		"m5.2xlarge": 0.4480,
		"m5.xlarge":  0.2240,
		"m5.large":   0.1120,
		"m5.4xlarge": 0.8960,
		"r5.2xlarge": 0.5920,
		"r5.xlarge":  0.2960,
		"r5.large":   0.1480,
		"t3.xlarge":  0.1888,
		"t3.large":   0.0944,
		"t3.medium":  0.0472,
		"t3.micro":   0.0118,
		"t3.small":   0.0236,
	},
	"sa-east-1": {
		"c5.large":   0.1310,
		"c5.xlarge":  0.2620,
		"c5.2xlarge": 0.5240,
		"m5.large":   0.1530,
		"m5.xlarge":  0.3060,
		"m5.2xlarge": 0.6120,
		"m5.4xlarge": 1.2240,
		"r5.large":   0.2010,
		"r5.xlarge":  0.4020,
		"r5.2xlarge": 0.8040,
		"t3.micro":   0.0168,
		"t3.small":   0.0336,
		"t3.medium":  0.0672,
		"t3.large":   0.1344,
		"t3.xlarge":  0.2688,
	},
	"us-east-1": {
		"c5.large":   0.0850,
		"c5.xlarge":  0.1700,
		"c5.2xlarge": 0.3400,
		"m5.large":   0.0960,
		"m5.xlarge":  0.1920,
		"m5.2xlarge": 0.3840,
		"m5.4xlarge": 0.7680,
		"r5.large":   0.1260,
		"r5.xlarge":  0.2520,
		"r5.2xlarge": 0.5040,
		"t3.micro":   0.0104,
		"t3.small":   0.0208,
		"t3.medium":  0.0416,
		"t3.large":   0.0832,
		"t3.xlarge":  0.1664,
	},
}
