package dom

// extractScript is the in-page summary builder. Placeholders, in order:
// includeContainers (%t), maxElements (%d), includePosition (%t twice).
// It selects interactive and identifiable elements (plus semantic
// containers when asked), deduplicates by (tag,id,classname), trims text
// to 100 chars, and sorts by page position when positions are included.
const extractScript = `(() => {
  const interactiveSelectors = [
    'button', 'a', 'input', 'select', 'textarea',
    '[role=button]', '[role=link]',
    '[data-testid]', '[data-test-id]', '[id]',
    'h1', 'h2', 'h3', 'h4', 'h5', 'h6'
  ];
  const containerSelectors = [
    'form', '[role=form]', '[role=dialog]', '[role=menu]', '[role=navigation]',
    'div[class*=form]', 'div[class*=modal]', 'div[class*=dialog]', 'div[class*=menu]',
    'section', 'article', 'nav', 'header', 'footer', 'aside', 'main'
  ];
  const includeContainers = %t;
  const maxElements = %d;
  const includePosition = %t;

  const selectors = includeContainers
    ? interactiveSelectors.concat(containerSelectors)
    : interactiveSelectors;

  const directText = el => {
    let text = '';
    for (const node of el.childNodes) {
      if (node.nodeType === Node.TEXT_NODE) text += node.textContent;
    }
    return text.trim();
  };

  const seen = new Set();
  const records = [];
  for (const el of document.querySelectorAll(selectors.join(','))) {
    const key = el.tagName + '|' + (el.id || '') + '|' + (el.className || '');
    if (seen.has(key)) continue;
    seen.add(key);

    const record = { tag: el.tagName.toLowerCase() };
    if (el.id) record.id = el.id;
    const classes = typeof el.className === 'string'
      ? el.className.split(/\s+/).filter(Boolean) : [];
    if (classes.length) record.classes = classes;

    const attrs = {};
    for (const name of ['role', 'type', 'name', 'aria-label', 'placeholder', 'value', 'title', 'data-testid']) {
      const v = el.getAttribute(name);
      if (v) attrs[name] = v;
    }
    if (Object.keys(attrs).length) record.attributes = attrs;
    if (attrs.role) record.role = attrs.role;
    if (attrs.type) record.type = attrs.type;
    if (attrs.name) record.name = attrs.name;
    if (attrs['data-testid']) record.testId = attrs['data-testid'];
    if (attrs['aria-label']) record.label = attrs['aria-label'];

    const direct = directText(el);
    const text = direct && direct.length <= 100
      ? direct
      : (el.textContent || '').trim().slice(0, 100);
    if (text) record.text = text;

    if (includePosition) {
      const rect = el.getBoundingClientRect();
      record.position = {
        top: Math.round(rect.top),
        left: Math.round(rect.left),
        width: Math.round(rect.width),
        height: Math.round(rect.height)
      };
      record.inViewport = rect.bottom > 0 && rect.right > 0 &&
        rect.top < window.innerHeight && rect.left < window.innerWidth;
    }

    records.push(record);
    if (records.length >= maxElements) break;
  }

  if (%t) {
    records.sort((a, b) =>
      (a.position.top * 10000 + a.position.left) - (b.position.top * 10000 + b.position.left));
  }
  return JSON.stringify(records);
})()`

// validateScript resolves one selector; placeholder is the quoted selector.
// Invalid selector syntax yields zero matches rather than a script error.
const validateScript = `(() => {
  let nodes;
  try {
    nodes = document.querySelectorAll(%s);
  } catch (e) {
    return JSON.stringify({exists: false, isUnique: false, isVisible: false, count: 0});
  }
  const count = nodes.length;
  let visible = false;
  if (count > 0) {
    const el = nodes[0];
    const style = window.getComputedStyle(el);
    const rect = el.getBoundingClientRect();
    visible = style.display !== 'none' && style.visibility !== 'hidden' &&
      rect.width > 0 && rect.height > 0;
  }
  return JSON.stringify({exists: count > 0, isUnique: count === 1, isVisible: visible, count: count});
})()`
