package llm

import "fmt"

const jsonPreamble = `Return the JSON object directly without any formatting or additional text. The JSON object should have the following structure as defined in the schema. Make sure to answer in valid json and include all necessary properties:`

// SubQueriesSchema describes the planner response.
func SubQueriesSchema(maxQueries int) string {
	return jsonPreamble + fmt.Sprintf(`{
  "type": "object",
  "properties": {
    "queries": {
      "type": "array",
      "maxItems": %d,
      "items": {
        "type": "object",
        "properties": {
          "query": {"type": "string", "description": "The search query"},
          "research_goal": {"type": "string", "description": "The goal of the research this query serves and how to advance it once results are found"}
        },
        "required": ["query", "research_goal"]
      },
      "description": "List of at most %d unique search queries"
    }
  },
  "required": ["queries"]
}`, maxQueries, maxQueries)
}

// FindingSchema describes the extractor response.
func FindingSchema(maxLearnings, maxFollowUps int) string {
	return jsonPreamble + fmt.Sprintf(`{
  "type": "object",
  "properties": {
    "learnings": {
      "type": "array",
      "maxItems": %d,
      "items": {"type": "string"},
      "description": "List of at most %d learnings from the contents"
    },
    "follow_up_questions": {
      "type": "array",
      "maxItems": %d,
      "items": {"type": "string"},
      "description": "List of at most %d follow-up questions to research the topic further"
    }
  },
  "required": ["learnings", "follow_up_questions"]
}`, maxLearnings, maxLearnings, maxFollowUps, maxFollowUps)
}
