package generate

const systemPrompt = `You are a professional long-form writer. You produce well-structured,
factually careful Markdown articles. Write plain prose under the requested
headings. Never include meta commentary about the writing process.`

const directPrompt = `Write a complete article about: %s

Requirements:
- Between %d and %d words
- Markdown format with ## section headings
- An engaging opening paragraph before the first heading
- A short concluding section at the end

Return only the article text.`

const outlinePrompt = `Plan an in-depth article about: %s

Respond with JSON only, no prose around it:
{"title": "article title", "sections": ["section title", ...]}

Provide exactly %d section titles. Order them so the article builds from
fundamentals to specifics.`

const sectionPrompt = `Write the section "%s" for an article about: %s

The article so far is %d words long. Write roughly %d words of flowing
prose for this section. Do not repeat the section title, do not add your
own headings, and do not summarize the whole article.

Return only the section text.`

const conclusionPrompt = `Write a concluding section for an article about: %s

At most %d words. Tie the main threads together and end on a practical
note. Do not add a heading.

Return only the conclusion text.`
