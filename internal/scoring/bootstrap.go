package scoring

import "github.com/JustJay7/cyber-case-triage/internal/features"

// Bootstrap returns the fixed synthetic exemplar cases used to train a first
// model before enough human verified cases exist.
func Bootstrap() []Row {
	return []Row{
		{Label: 98, Features: features.Vector{
			CaseType: "Hacking", EstimatedFinancialDamage: 15000000, NumVictims: 1,
			ReputationalDamageLevel: "Critical", TechnicalComplexityLevel: "Extreme", InitialEvidenceClarity: "High",
			SensitiveDataCompromised: true, OngoingThreat: true, RiskOfEvidenceLoss: true,
			EvidenceCount: 5, HasActionableEvidence: true, DaysSinceCreation: 15, NumLinkedCases: 2, IsGrouped: true,
		}},
		{Label: 85, Features: features.Vector{
			CaseType: "Scam", EstimatedFinancialDamage: 120000, NumVictims: 1,
			ReputationalDamageLevel: "Low", TechnicalComplexityLevel: "Medium", InitialEvidenceClarity: "Low",
			OngoingThreat: true, RiskOfEvidenceLoss: true,
			EvidenceCount: 2, HasActionableEvidence: true, DaysSinceCreation: 3,
		}},
		{Label: 95, Features: features.Vector{
			CaseType: "Phishing", EstimatedFinancialDamage: 8500000, NumVictims: 250,
			ReputationalDamageLevel: "High", TechnicalComplexityLevel: "High", InitialEvidenceClarity: "High",
			SensitiveDataCompromised: true, OngoingThreat: true,
			EvidenceCount: 10, HasActionableEvidence: true, DaysSinceCreation: 45, NumLinkedCases: 4, IsGrouped: true,
		}},
		{Label: 58, Features: features.Vector{
			CaseType: "Illegal Content", EstimatedFinancialDamage: 0, NumVictims: 1,
			ReputationalDamageLevel: "High", TechnicalComplexityLevel: "Low", InitialEvidenceClarity: "Very High",
			OngoingThreat: true,
			EvidenceCount: 1, DaysSinceCreation: 90,
		}},
		{Label: 64, Features: features.Vector{
			CaseType: "Scam", EstimatedFinancialDamage: 45000, NumVictims: 80,
			ReputationalDamageLevel: "None", TechnicalComplexityLevel: "Low", InitialEvidenceClarity: "Medium",
			RiskOfEvidenceLoss: true,
			EvidenceCount: 3, HasActionableEvidence: true, DaysSinceCreation: 5,
		}},
		{Label: 45, Features: features.Vector{
			CaseType: "Hacking", EstimatedFinancialDamage: 5000, NumVictims: 1,
			ReputationalDamageLevel: "Low", TechnicalComplexityLevel: "Medium", InitialEvidenceClarity: "Low",
			RiskOfEvidenceLoss: true,
			DaysSinceCreation: 2, NumLinkedCases: 1, IsGrouped: true,
		}},
		{Label: 75, Features: features.Vector{
			CaseType: "Cyberbullying", EstimatedFinancialDamage: 0, NumVictims: 1,
			ReputationalDamageLevel: "Medium", TechnicalComplexityLevel: "Low", InitialEvidenceClarity: "Very High",
			SensitiveDataCompromised: true, OngoingThreat: true,
			EvidenceCount: 4, HasActionableEvidence: true, DaysSinceCreation: 30,
		}},
		{Label: 10, Features: features.Vector{
			CaseType: "Unknown", EstimatedFinancialDamage: 100, NumVictims: 0,
			ReputationalDamageLevel: "None", TechnicalComplexityLevel: "Low", InitialEvidenceClarity: "None",
			DaysSinceCreation: 1,
		}},
	}
}
