// internal/grounding/script.go
package grounding

// tagAttribute is the DOM attribute written onto every catalogued element.
// Its value is "<generation>-<id>", which makes stale references from older
// snapshots detectable at lookup time.
const tagAttribute = "data-sirius-id"

// scanScript collects interactive candidates, filters for visibility, clamps
// geometry to the viewport, tags each surviving element, and returns the
// catalog. Parameters: generation, minSizePx, maxElements, candidateCeiling,
// labelMaxChars. A fault on any single candidate drops that candidate only.
const scanScript = `(function(gen, minSizePx, maxElements, candidateCeiling, labelMaxChars) {
	const SELECTORS = [
		'a[href]',
		'button',
		'input',
		'textarea',
		'select',
		'[role="button"]',
		'[role="link"]',
		'[role="checkbox"]',
		'[role="radio"]',
		'[role="tab"]',
		'[onclick]',
		'[tabindex]'
	].join(',');

	const vw = window.innerWidth;
	const vh = window.innerHeight;

	for (const old of document.querySelectorAll('[` + tagAttribute + `]')) {
		old.removeAttribute('` + tagAttribute + `');
	}

	function labelFor(el) {
		let text = (el.getAttribute('aria-label') || '').trim();
		if (!text) text = (el.innerText || '').trim().replace(/\s+/g, ' ');
		if (!text) text = (el.getAttribute('placeholder') || '').trim();
		if (!text) text = (el.getAttribute('title') || '').trim();
		if (!text) text = (el.getAttribute('value') || '').trim();
		if (!text && el.tagName === 'INPUT') text = (el.getAttribute('name') || '').trim();
		if (text.length > labelMaxChars) {
			// Slice by code points so astral characters are not cut in half.
			text = Array.from(text).slice(0, labelMaxChars - 1).join('') + '…';
		}
		return text;
	}

	function roleFor(el) {
		const explicit = el.getAttribute('role');
		if (explicit) return explicit;
		switch (el.tagName) {
		case 'A': return 'link';
		case 'BUTTON': return 'button';
		case 'SELECT': return 'combobox';
		case 'TEXTAREA': return 'textbox';
		case 'INPUT': {
			const t = (el.getAttribute('type') || 'text').toLowerCase();
			if (t === 'checkbox' || t === 'radio' || t === 'button' || t === 'submit') return t;
			return 'textbox';
		}
		default: return 'generic';
		}
	}

	const raw = document.querySelectorAll(SELECTORS);
	const elements = [];
	let id = 1;
	let examined = 0;

	for (const el of raw) {
		if (examined >= candidateCeiling || elements.length >= maxElements) break;
		examined++;
		try {
			const ti = el.getAttribute('tabindex');
			if (ti !== null && el.matches('[tabindex]:not(a[href]):not(button):not(input):not(textarea):not(select)')) {
				if (parseInt(ti, 10) <= 0) continue;
			}

			const style = window.getComputedStyle(el);
			if (style.display === 'none' || style.visibility === 'hidden') continue;
			if (parseFloat(style.opacity) === 0) continue;

			const rect = el.getBoundingClientRect();
			const x1 = Math.max(0, rect.left);
			const y1 = Math.max(0, rect.top);
			const x2 = Math.min(vw, rect.right);
			const y2 = Math.min(vh, rect.bottom);
			const w = x2 - x1;
			const h = y2 - y1;
			if (w < minSizePx || h < minSizePx) continue;

			el.setAttribute('` + tagAttribute + `', gen + '-' + id);

			const attrs = {};
			for (const name of ['href', 'type', 'name', 'value', 'placeholder', 'alt', 'aria-label']) {
				const v = el.getAttribute(name);
				if (v !== null) attrs[name] = v.slice(0, 256);
			}

			elements.push({
				id: id,
				role: roleFor(el),
				tag: el.tagName.toLowerCase(),
				label: labelFor(el),
				bbox: {x: x1, y: y1, width: w, height: h},
				attributes: attrs
			});
			id++;
		} catch (e) {
			// One broken candidate must not abort the scan.
		}
	}

	return {
		url: window.location.href,
		title: document.title,
		viewport: {width: vw, height: vh},
		devicePixelRatio: window.devicePixelRatio || 1,
		elements: elements
	};
})(%d, %g, %d, %d, %d)`
